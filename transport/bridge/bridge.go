// Package bridge adapts a watermill publisher/subscriber pair into a
// transport adapter. Broker-backed transports (kafka, nats, rabbitmq, aws,
// channel) are thin builders around this type: they construct the driver
// pair and hand it over.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/sockflow/internal/runtime/metadata"
	"github.com/drblury/sockflow/transport"
)

// Topics names the broker topics the bridge operates on. Inbound is
// consumed, Outbound receives client-targeted sends, Broadcast receives
// fan-out sends.
type Topics struct {
	Inbound   string
	Outbound  string
	Broadcast string
}

// TopicsFromConfig reads the bridge topics from config.
func TopicsFromConfig(cfg transport.Config) Topics {
	return Topics{
		Inbound:   cfg.GetInboundTopic(),
		Outbound:  cfg.GetOutboundTopic(),
		Broadcast: cfg.GetBroadcastTopic(),
	}
}

// Bridge consumes envelope frames from the inbound topic and publishes
// outbound frames stamped with routing metadata. A downstream edge (another
// process, a gateway) does the per-client delivery; the bridge's job is to
// keep the addressing intact across the broker.
type Bridge struct {
	name       string
	publisher  message.Publisher
	subscriber message.Subscriber
	topics     Topics
	logger     watermill.LoggerAdapter

	mu   sync.RWMutex
	fn   transport.MessageFunc
	opts transport.ReconnectOptions
}

// New wires a publisher/subscriber pair into a bridge adapter.
func New(name string, publisher message.Publisher, subscriber message.Subscriber, topics Topics, logger watermill.LoggerAdapter) (*Bridge, error) {
	if name == "" {
		return nil, errors.New("bridge: adapter name is required")
	}
	if publisher == nil {
		return nil, errors.New("bridge: publisher is required")
	}
	if subscriber == nil {
		return nil, errors.New("bridge: subscriber is required")
	}
	if topics.Inbound == "" || topics.Outbound == "" || topics.Broadcast == "" {
		return nil, errors.New("bridge: inbound, outbound and broadcast topics are required")
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Bridge{
		name:       name,
		publisher:  publisher,
		subscriber: subscriber,
		topics:     topics,
		logger:     logger,
	}, nil
}

// Name implements transport.Adapter.
func (b *Bridge) Name() string { return b.name }

// OnMessage implements transport.Adapter. A nil fn detaches the callback;
// inbound frames are dropped until a new one is installed.
func (b *Bridge) OnMessage(fn transport.MessageFunc) {
	b.mu.Lock()
	b.fn = fn
	b.mu.Unlock()
}

func (b *Bridge) callback() transport.MessageFunc {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.fn
}

// Send publishes one envelope per target client to the outbound topic.
// Without targets a single unaddressed envelope is published.
func (b *Bridge) Send(event string, payload []byte, clientIDs ...string) error {
	if len(clientIDs) == 0 {
		return b.publishFrame(b.topics.Outbound, event, payload, "", "")
	}
	for _, clientID := range clientIDs {
		if err := b.publishFrame(b.topics.Outbound, event, payload, clientID, ""); err != nil {
			return err
		}
	}
	return nil
}

// Broadcast publishes one envelope per channel to the broadcast topic.
// Without channels a single unscoped envelope is published.
func (b *Bridge) Broadcast(event string, payload []byte, channels ...string) error {
	if len(channels) == 0 {
		return b.publishFrame(b.topics.Broadcast, event, payload, "", "")
	}
	for _, channel := range channels {
		if err := b.publishFrame(b.topics.Broadcast, event, payload, "", channel); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) publishFrame(topic, event string, payload []byte, clientID, channel string) error {
	env, err := transport.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	env.ClientID = clientID
	env.Channel = channel

	frame, err := env.Encode()
	if err != nil {
		return err
	}

	md := metadata.New(
		transport.MetaKeyEvent, event,
		transport.MetaKeyMessageID, env.ID,
	)
	if clientID != "" {
		md = md.With(transport.MetaKeyClientID, clientID)
	}
	if channel != "" {
		md = md.With(transport.MetaKeyChannel, channel)
	}

	msg := message.NewMessage(env.ID, frame)
	msg.Metadata = metadata.ToWatermill(md)

	if err := b.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// NormalizePayload implements transport.PayloadNormalizer. Envelope frames
// are decoded in full; anything else is treated as a bare payload with no
// addressing, so foreign producers on the inbound topic still dispatch.
func (b *Bridge) NormalizePayload(raw []byte) (transport.Envelope, error) {
	if env, err := transport.DecodeEnvelope(raw); err == nil {
		return env, nil
	}
	return transport.Envelope{Payload: raw}, nil
}

// Topics returns the topics the bridge operates on.
func (b *Bridge) Topics() Topics { return b.topics }

// Run implements transport.Runner. It consumes the inbound topic until ctx
// is cancelled, acking every frame after handing it to the callback.
func (b *Bridge) Run(ctx context.Context) error {
	messages, err := b.subscriber.Subscribe(ctx, b.topics.Inbound)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.topics.Inbound, err)
	}
	return b.Consume(messages)
}

// Consume drains an already-open message stream through the callback.
// Wrapping adapters use it when subscription needs extra sequencing.
func (b *Bridge) Consume(messages <-chan *message.Message) error {
	for msg := range messages {
		b.deliver(msg)
		msg.Ack()
	}
	return nil
}

func (b *Bridge) deliver(msg *message.Message) {
	fn := b.callback()
	if fn == nil {
		b.logger.Debug("no message callback installed, dropping frame", watermill.LogFields{
			"message_id": msg.UUID,
		})
		return
	}

	event := msg.Metadata.Get(transport.MetaKeyEvent)
	if event == "" {
		if env, err := transport.DecodeEnvelope(msg.Payload); err == nil {
			event = env.Event
		}
	}
	if event == "" {
		b.logger.Info("dropping inbound frame without an event type", watermill.LogFields{
			"message_id": msg.UUID,
			"topic":      b.topics.Inbound,
		})
		return
	}

	fn(event, msg.Payload)
}

// Disconnect implements transport.Disconnector.
func (b *Bridge) Disconnect() error {
	return errors.Join(b.publisher.Close(), b.subscriber.Close())
}

// Reconfigure implements transport.Reconfigurer. The watermill drivers
// reconnect internally; the options are recorded for introspection.
func (b *Bridge) Reconfigure(opts transport.ReconnectOptions) error {
	b.mu.Lock()
	b.opts = opts
	b.mu.Unlock()
	return nil
}

// ReconnectOptions returns the most recently applied reconnect options.
func (b *Bridge) ReconnectOptions() transport.ReconnectOptions {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.opts
}
