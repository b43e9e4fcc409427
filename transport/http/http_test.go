package http

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	watermillhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/sockflow/transport"
	"github.com/drblury/sockflow/transport/transporttest"
)

func TestRegister(t *testing.T) {
	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "http", caps.Name)
	assert.False(t, caps.SupportsUnicast)
	assert.True(t, caps.SupportsBroadcast)
	assert.True(t, caps.RequiresEdgeRouting())
}

func TestCapabilities(t *testing.T) {
	caps := Capabilities()
	assert.Equal(t, transport.HTTPCapabilities, caps)
	assert.Equal(t, "http", caps.Name)
}

func TestTransportName(t *testing.T) {
	assert.Equal(t, "http", TransportName)
}

func TestPathify(t *testing.T) {
	assert.Equal(t, "/sockflow.inbound", pathify("sockflow.inbound"))
	assert.Equal(t, "/already", pathify("/already"))
}

func TestBuild(t *testing.T) {
	t.Run("creates adapter with mocked factories", func(t *testing.T) {
		originalPubFactory := PublisherFactory
		originalSubFactory := SubscriberFactory
		defer func() {
			PublisherFactory = originalPubFactory
			SubscriberFactory = originalSubFactory
		}()

		mockPub := &mockPublisher{}
		mockSub := &mockSubscriber{}

		PublisherFactory = func(config watermillhttp.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
			return mockPub, nil
		}
		SubscriberFactory = func(addr string, config watermillhttp.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
			return mockSub, nil
		}

		cfg := &transporttest.Config{
			Transport:         TransportName,
			HTTPServerAddress: ":8080",
			HTTPPublisherURL:  "http://localhost:8080",
		}
		adapter, err := Build(context.Background(), cfg, watermill.NopLogger{})

		require.NoError(t, err)
		assert.Equal(t, "http", adapter.Name())

		// Outbound traffic goes through the mocked publisher on path topics.
		require.NoError(t, adapter.Send("notify", []byte(`{}`), "client-1"))
		require.Len(t, mockPub.published, 1)
		assert.Equal(t, "/sockflow.outbound", mockPub.published[0])
	})

	t.Run("returns error when publisher factory fails", func(t *testing.T) {
		originalPubFactory := PublisherFactory
		defer func() { PublisherFactory = originalPubFactory }()

		PublisherFactory = func(config watermillhttp.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
			return nil, errors.New("publisher error")
		}

		cfg := &transporttest.Config{Transport: TransportName}
		_, err := Build(context.Background(), cfg, watermill.NopLogger{})

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "publisher error")
	})

	t.Run("returns error when subscriber factory fails", func(t *testing.T) {
		originalPubFactory := PublisherFactory
		originalSubFactory := SubscriberFactory
		defer func() {
			PublisherFactory = originalPubFactory
			SubscriberFactory = originalSubFactory
		}()

		PublisherFactory = func(config watermillhttp.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
			return &mockPublisher{}, nil
		}
		SubscriberFactory = func(addr string, config watermillhttp.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
			return nil, errors.New("subscriber error")
		}

		cfg := &transporttest.Config{Transport: TransportName}
		_, err := Build(context.Background(), cfg, watermill.NopLogger{})

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "subscriber error")
	})
}

func TestRun_ConsumesInboundPath(t *testing.T) {
	originalPubFactory := PublisherFactory
	originalSubFactory := SubscriberFactory
	defer func() {
		PublisherFactory = originalPubFactory
		SubscriberFactory = originalSubFactory
	}()

	mockSub := &mockSubscriber{messages: make(chan *message.Message, 1)}
	PublisherFactory = func(config watermillhttp.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return &mockPublisher{}, nil
	}
	SubscriberFactory = func(addr string, config watermillhttp.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return mockSub, nil
	}

	cfg := &transporttest.Config{Transport: TransportName}
	adapter, err := Build(context.Background(), cfg, watermill.NopLogger{})
	require.NoError(t, err)

	got := make(chan string, 1)
	adapter.OnMessage(func(event string, payload []byte) {
		got <- event
	})

	runner, ok := adapter.(transport.Runner)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	env, err := transport.NewEnvelope("webhook.received", []byte(`{}`))
	require.NoError(t, err)
	frame, err := env.Encode()
	require.NoError(t, err)
	mockSub.messages <- message.NewMessage(env.ID, frame)

	select {
	case event := <-got:
		assert.Equal(t, "webhook.received", event)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for inbound dispatch")
	}
	assert.Equal(t, "/sockflow.inbound", mockSub.subscribedTo)

	close(mockSub.messages)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop when the stream closed")
	}
}

type mockPublisher struct {
	published []string
}

func (m *mockPublisher) Publish(topic string, messages ...*message.Message) error {
	for range messages {
		m.published = append(m.published, topic)
	}
	return nil
}
func (m *mockPublisher) Close() error { return nil }

type mockSubscriber struct {
	subscribedTo string
	messages     chan *message.Message
}

func (m *mockSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	m.subscribedTo = topic
	if m.messages == nil {
		m.messages = make(chan *message.Message)
	}
	return m.messages, nil
}
func (m *mockSubscriber) Close() error { return nil }
