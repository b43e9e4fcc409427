// Package transporttest provides a struct-backed config stub for testing
// transport adapters without pulling in the full config package.
package transporttest

import "time"

// Config implements transport.Config from plain fields. Topic and path
// getters fall back to the same defaults the real config uses, so the zero
// value is usable in adapter tests.
type Config struct {
	Transport            string
	Debug                bool
	StrictMode           bool
	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration

	InboundTopic   string
	OutboundTopic  string
	BroadcastTopic string

	WSListenAddress   string
	WSPath            string
	WSAllowedOrigins  []string
	WSReadBufferSize  int
	WSWriteBufferSize int
	WSMaxMessageSize  int64

	SSEListenAddress string

	HTTPServerAddress string
	HTTPPublisherURL  string

	KafkaBrokers       []string
	KafkaConsumerGroup string

	NATSURL string

	RabbitMQURL string

	AWSRegion          string
	AWSAccountID       string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSEndpoint        string

	PostgresURL string

	SQLiteFile string

	IOFile string
}

func (c *Config) GetTransport() string             { return c.Transport }
func (c *Config) GetDebug() bool                   { return c.Debug }
func (c *Config) GetStrictMode() bool              { return c.StrictMode }
func (c *Config) GetAutoReconnect() bool           { return c.AutoReconnect }
func (c *Config) GetMaxReconnectAttempts() int     { return c.MaxReconnectAttempts }
func (c *Config) GetReconnectDelay() time.Duration { return c.ReconnectDelay }

func (c *Config) GetInboundTopic() string {
	if c.InboundTopic == "" {
		return "sockflow.inbound"
	}
	return c.InboundTopic
}

func (c *Config) GetOutboundTopic() string {
	if c.OutboundTopic == "" {
		return "sockflow.outbound"
	}
	return c.OutboundTopic
}

func (c *Config) GetBroadcastTopic() string {
	if c.BroadcastTopic == "" {
		return "sockflow.broadcast"
	}
	return c.BroadcastTopic
}

func (c *Config) GetWSListenAddress() string { return c.WSListenAddress }

func (c *Config) GetWSPath() string {
	if c.WSPath == "" {
		return "/ws"
	}
	return c.WSPath
}

func (c *Config) GetWSAllowedOrigins() []string { return c.WSAllowedOrigins }
func (c *Config) GetWSReadBufferSize() int      { return c.WSReadBufferSize }
func (c *Config) GetWSWriteBufferSize() int     { return c.WSWriteBufferSize }
func (c *Config) GetWSMaxMessageSize() int64    { return c.WSMaxMessageSize }

func (c *Config) GetSSEListenAddress() string { return c.SSEListenAddress }

func (c *Config) GetHTTPServerAddress() string { return c.HTTPServerAddress }
func (c *Config) GetHTTPPublisherURL() string  { return c.HTTPPublisherURL }

func (c *Config) GetKafkaBrokers() []string     { return c.KafkaBrokers }
func (c *Config) GetKafkaConsumerGroup() string { return c.KafkaConsumerGroup }

func (c *Config) GetNATSURL() string { return c.NATSURL }

func (c *Config) GetRabbitMQURL() string { return c.RabbitMQURL }

func (c *Config) GetAWSRegion() string          { return c.AWSRegion }
func (c *Config) GetAWSAccountID() string       { return c.AWSAccountID }
func (c *Config) GetAWSAccessKeyID() string     { return c.AWSAccessKeyID }
func (c *Config) GetAWSSecretAccessKey() string { return c.AWSSecretAccessKey }
func (c *Config) GetAWSEndpoint() string        { return c.AWSEndpoint }

func (c *Config) GetPostgresURL() string { return c.PostgresURL }

func (c *Config) GetSQLiteFile() string { return c.SQLiteFile }

func (c *Config) GetIOFile() string { return c.IOFile }
