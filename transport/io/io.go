// Package io provides a file-based record/replay transport adapter for
// sockflow. Outbound traffic is appended to a JSON-lines file; replaying a
// recorded file feeds the dispatch loop without any broker or live clients.
package io

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"

	"github.com/drblury/sockflow/transport"
	"github.com/drblury/sockflow/transport/bridge"
)

// TransportName is the name used to register this adapter.
const TransportName = "io"

// DefaultFilePath is used when the config names no file.
const DefaultFilePath = "sockflow.jsonl"

// pollInterval is how long the replayer waits at EOF before re-checking
// the file for appended lines.
const pollInterval = 50 * time.Millisecond

// PublisherFactory allows overriding the recorder creation for testing.
var PublisherFactory = func(filePath string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return &Recorder{filePath: filePath, logger: logger}, nil
}

// SubscriberFactory allows overriding the replayer creation for testing.
var SubscriberFactory = func(filePath string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return &Replayer{filePath: filePath, logger: logger}, nil
}

func init() {
	Register()
}

// Register registers the I/O adapter with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.IOCapabilities)
}

// Build creates a file-based adapter. Recorder and replayer share one file,
// so pointing the inbound topic at the outbound one loops frames back
// through the dispatcher.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Adapter, error) {
	filePath := cfg.GetIOFile()
	if filePath == "" {
		filePath = DefaultFilePath
	}

	pub, err := PublisherFactory(filePath, logger)
	if err != nil {
		return nil, err
	}

	sub, err := SubscriberFactory(filePath, logger)
	if err != nil {
		return nil, err
	}

	return bridge.New(TransportName, pub, sub, bridge.TopicsFromConfig(cfg), logger)
}

// Capabilities returns the capabilities of this adapter.
func Capabilities() transport.Capabilities {
	return transport.IOCapabilities
}

// record is the JSON-lines structure for persisted frames. Payload is
// base64 in the file, so binary frames survive the roundtrip.
type record struct {
	ID       string            `json:"id"`
	Topic    string            `json:"topic"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Payload  []byte            `json:"payload"`
}

// Recorder appends frames to the file, one JSON object per line.
type Recorder struct {
	filePath string
	logger   watermill.LoggerAdapter
	mu       sync.Mutex
}

// Publish appends messages to the file.
func (r *Recorder) Publish(topic string, messages ...*message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, msg := range messages {
		line, err := sonic.ConfigStd.Marshal(record{
			ID:       msg.UUID,
			Topic:    topic,
			Metadata: msg.Metadata,
			Payload:  msg.Payload,
		})
		if err != nil {
			return err
		}

		if _, err := f.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the recorder. The file handle is per-publish, so there is
// nothing to release.
func (r *Recorder) Close() error {
	return nil
}

// Replayer tails the file and emits recorded frames for one topic.
type Replayer struct {
	filePath string
	logger   watermill.LoggerAdapter
}

// Subscribe reads the file from the start and keeps following appends until
// the context is cancelled.
func (r *Replayer) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	out := make(chan *message.Message)

	go func() {
		defer close(out)

		f, err := os.OpenFile(r.filePath, os.O_RDONLY|os.O_CREATE, 0600)
		if err != nil {
			r.logger.Error("Failed to open replay file", err, nil)
			return
		}
		defer f.Close()

		var lastPos int64
		reader := bufio.NewReader(f)

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line, err := reader.ReadBytes('\n')
			if err != nil {
				if err == io.EOF {
					if !r.waitForAppend(ctx, f, reader, &lastPos) {
						return
					}
					continue
				}
				r.logger.Error("Failed to read replay file", err, nil)
				return
			}

			currentPos, _ := f.Seek(0, io.SeekCurrent)
			lastPos = currentPos - int64(reader.Buffered())

			if !r.emit(ctx, out, line, topic) {
				return
			}
		}
	}()

	return out, nil
}

// Close closes the replayer.
func (r *Replayer) Close() error {
	return nil
}

// waitForAppend parks at EOF and rewinds the reader to the last complete
// line, so partially written lines are re-read once the writer finishes
// them. Returns false when the subscription should end.
func (r *Replayer) waitForAppend(ctx context.Context, f *os.File, reader *bufio.Reader, lastPos *int64) bool {
	currentPos, _ := f.Seek(0, io.SeekCurrent)
	currentPos -= int64(reader.Buffered())

	if currentPos > *lastPos {
		*lastPos = currentPos
	}

	select {
	case <-ctx.Done():
		return false
	case <-time.After(pollInterval):
	}

	if _, err := f.Seek(*lastPos, io.SeekStart); err != nil {
		r.logger.Error("Failed to seek replay file", err, nil)
		return false
	}
	reader.Reset(f)
	return true
}

func (r *Replayer) emit(ctx context.Context, out chan<- *message.Message, line []byte, topic string) bool {
	var rec record
	if err := sonic.ConfigStd.Unmarshal(line, &rec); err != nil {
		r.logger.Error("Skipping malformed replay line", err, nil)
		return true
	}

	if rec.Topic != topic {
		return true
	}

	msg := message.NewMessage(rec.ID, rec.Payload)
	msg.Metadata = rec.Metadata

	select {
	case out <- msg:
		select {
		case <-msg.Acked():
		case <-msg.Nacked():
			r.logger.Debug("Replayed frame nacked", watermill.LogFields{"id": msg.UUID})
		case <-ctx.Done():
			return false
		}
	case <-ctx.Done():
		return false
	}
	return true
}
