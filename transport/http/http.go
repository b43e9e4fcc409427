// Package http provides an HTTP webhook adapter for sockflow. Inbound
// frames arrive as POSTs on the inbound topic path; outbound frames are
// POSTed to the publisher URL joined with the topic path.
package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/sockflow/transport"
	"github.com/drblury/sockflow/transport/bridge"
)

// TransportName is the name used to register this adapter.
const TransportName = "http"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(config http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return http.NewPublisher(config, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(addr string, config http.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return http.NewSubscriber(addr, config, logger)
}

func init() {
	Register()
}

// Register adds this adapter to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.HTTPCapabilities)
}

// Build creates a new HTTP webhook adapter.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Adapter, error) {
	serverAddr := cfg.GetHTTPServerAddress()
	publisherURL := cfg.GetHTTPPublisherURL()

	publisher, err := PublisherFactory(
		http.PublisherConfig{
			MarshalMessageFunc: func(topic string, msg *message.Message) (*nethttp.Request, error) {
				return http.DefaultMarshalMessageFunc(publisherURL+topic, msg)
			},
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	subscriber, err := SubscriberFactory(
		serverAddr,
		http.SubscriberConfig{
			UnmarshalMessageFunc: http.DefaultUnmarshalMessageFunc,
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	br, err := bridge.New(TransportName, publisher, subscriber, pathTopics(bridge.TopicsFromConfig(cfg)), logger)
	if err != nil {
		return nil, err
	}
	return &adapter{Bridge: br, subscriber: subscriber, logger: logger}, nil
}

// Capabilities returns the capabilities of this adapter.
func Capabilities() transport.Capabilities {
	return transport.HTTPCapabilities
}

// pathTopics turns broker topic names into URL paths, the form the
// watermill HTTP publisher and subscriber expect.
func pathTopics(topics bridge.Topics) bridge.Topics {
	topics.Inbound = pathify(topics.Inbound)
	topics.Outbound = pathify(topics.Outbound)
	topics.Broadcast = pathify(topics.Broadcast)
	return topics
}

func pathify(topic string) string {
	if strings.HasPrefix(topic, "/") {
		return topic
	}
	return "/" + topic
}

// adapter wraps the bridge so the subscriber's HTTP server starts only
// after the inbound route is registered.
type adapter struct {
	*bridge.Bridge
	subscriber message.Subscriber
	logger     watermill.LoggerAdapter
}

// Run subscribes to the inbound path, starts the receiving server, and
// consumes frames until ctx is cancelled.
func (a *adapter) Run(ctx context.Context) error {
	messages, err := a.subscriber.Subscribe(ctx, a.Topics().Inbound)
	if err != nil {
		return err
	}

	if s, ok := a.subscriber.(*http.Subscriber); ok {
		go func() {
			if err := s.StartHTTPServer(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
				a.logger.Error("http subscriber server failed", err, nil)
			}
		}()
	}

	return a.Consume(messages)
}
