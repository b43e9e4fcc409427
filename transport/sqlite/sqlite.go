// Package sqlite provides a SQLite-backed durable queue adapter for
// sockflow. The queue lives in a single database file, which suits
// single-node deployments that need messages to survive a restart without
// running a broker. The driver is pure Go, so the adapter builds without
// cgo.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/drblury/sockflow/transport"
	"github.com/drblury/sockflow/transport/bridge"
)

// TransportName is the name used to register this adapter.
const TransportName = "sqlite"

const (
	// DefaultFilePath is used when the config names no database file.
	DefaultFilePath = "sockflow_queue.db"
	// DefaultPollInterval is how often each subscription checks for new rows.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultMaxRetries is the number of redeliveries before a message moves
	// to the dead letter table.
	DefaultMaxRetries = 3
	// DefaultLockTimeout bounds how long a fetched message stays invisible
	// to other subscriptions.
	DefaultLockTimeout = 30 * time.Second
)

// QueueFactory allows overriding the queue creation for testing.
var QueueFactory = func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	q, err := Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return q, q, nil
}

func init() {
	Register()
}

// Register adds this adapter to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.SQLiteCapabilities)
}

// Build creates a queue-backed adapter from the service configuration.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Adapter, error) {
	pub, sub, err := QueueFactory(ctx, Config{FilePath: cfg.GetSQLiteFile()}, logger)
	if err != nil {
		return nil, err
	}

	return bridge.New(TransportName, pub, sub, bridge.TopicsFromConfig(cfg), logger)
}

// Capabilities returns the capabilities of this adapter.
func Capabilities() transport.Capabilities {
	return transport.SQLiteCapabilities
}

// Config holds queue tuning. The zero value opens DefaultFilePath in the
// working directory.
type Config struct {
	// FilePath is the database file. Use ":memory:" for an in-memory
	// queue, which is handy in tests but defeats the point of this
	// adapter in production.
	FilePath string
	// PollInterval is how often each subscription checks for new rows.
	PollInterval time.Duration
	// MaxRetries is the number of redeliveries before a message moves to
	// the dead letter table. Zero means DefaultMaxRetries; a negative
	// value dead-letters on the first nack.
	MaxRetries int
	// LockTimeout is how long a fetched message stays invisible to other
	// subscriptions before it becomes eligible again.
	LockTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.FilePath == "" {
		c.FilePath = DefaultFilePath
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = DefaultLockTimeout
	}
	return c
}

var errQueueClosed = errors.New("sqlite queue is closed")

// Queue implements message.Publisher and message.Subscriber on top of a
// SQLite database. All timestamps are stored as Unix milliseconds, so no
// driver-specific time formatting leaks into the schema.
type Queue struct {
	db     *sql.DB
	cfg    Config
	logger watermill.LoggerAdapter

	closed   bool
	closedMu sync.RWMutex
	done     chan struct{}
	wg       sync.WaitGroup
}

// Open opens the database file, creates the queue tables if they are
// missing, and returns a ready queue.
func Open(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (*Queue, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	cfg = cfg.withDefaults()

	dsn := cfg.FilePath
	if dsn != ":memory:" {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite queue: %w", err)
	}

	// A single connection serialises writers and keeps an in-memory
	// database from evaporating between pool checkouts.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite queue: %w", err)
	}

	q := &Queue{
		db:     db,
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
	if err := q.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite queue schema: %w", err)
	}
	return q, nil
}

func (q *Queue) initSchema(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		topic TEXT NOT NULL,
		payload BLOB NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		available_at INTEGER NOT NULL,
		locked_until INTEGER,
		retry_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_messages_topic_available
		ON messages(topic, available_at);

	CREATE TABLE IF NOT EXISTS dead_letters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL,
		topic TEXT NOT NULL,
		payload BLOB NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		reason TEXT,
		failed_at INTEGER NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_dead_letters_topic ON dead_letters(topic);
	`
	_, err := q.db.ExecContext(ctx, ddl)
	return err
}

// Publish stores messages for the topic. Delivery is deferred when the
// reserved delay metadata key carries a duration. Re-publishing a UUID
// that is already queued is a no-op, so upstream redeliveries do not
// duplicate rows.
func (q *Queue) Publish(topic string, messages ...*message.Message) error {
	if q.isClosed() {
		return errQueueClosed
	}

	tx, err := q.db.Begin()
	if err != nil {
		return fmt.Errorf("begin publish: %w", err)
	}
	defer rollback(tx, q.logger)

	stmt, err := tx.Prepare(`
		INSERT INTO messages (uuid, topic, payload, metadata, created_at, available_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, msg := range messages {
		meta, err := sonic.ConfigStd.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", msg.UUID, err)
		}

		_, err = stmt.Exec(msg.UUID, topic, msg.Payload, string(meta),
			now.UnixMilli(), availableAt(now, msg).UnixMilli())
		if err != nil {
			// A duplicate insert aborts the statement, not the
			// transaction, so the remaining messages still go in.
			if isUniqueViolation(err) {
				q.logger.Debug("Skipping duplicate queued message", watermill.LogFields{"message_id": msg.UUID})
				continue
			}
			return fmt.Errorf("insert message %s: %w", msg.UUID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit publish: %w", err)
	}
	return nil
}

// availableAt computes the earliest delivery time, honouring the reserved
// delay metadata key.
func availableAt(now time.Time, msg *message.Message) time.Time {
	if raw := msg.Metadata.Get(transport.MetaKeyDelay); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return now.Add(d)
		}
	}
	return now
}

// isUniqueViolation reports whether err is a primary-key or unique
// constraint failure from the driver.
func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}

// Subscribe polls the topic until ctx is cancelled or the queue is closed.
// A fetched message is locked for LockTimeout; if it is neither acked nor
// nacked before the lock expires it becomes eligible again.
func (q *Queue) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if q.isClosed() {
		return nil, errQueueClosed
	}

	out := make(chan *message.Message)
	q.wg.Add(1)
	go q.poll(ctx, topic, out)
	return out, nil
}

func (q *Queue) poll(ctx context.Context, topic string, out chan *message.Message) {
	defer q.wg.Done()
	defer close(out)

	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			return
		case <-ticker.C:
			// Drain everything that is ready before sleeping again.
			for q.deliverNext(ctx, topic, out) {
			}
		}
	}
}

// deliverNext hands one locked message to the subscriber and waits for its
// resolution. Returns false when the topic is drained or the subscription
// is shutting down.
func (q *Queue) deliverNext(ctx context.Context, topic string, out chan *message.Message) bool {
	id, msg, ok := q.fetchAndLock(ctx, topic)
	if !ok {
		return false
	}

	select {
	case out <- msg:
		return q.await(ctx, id, topic, msg)
	case <-ctx.Done():
		q.unlock(id)
	case <-q.done:
		q.unlock(id)
	}
	return false
}

// fetchAndLock claims the oldest available message inside a transaction.
// SQLite has no SKIP LOCKED, so the select and the lock update share a
// transaction on the single pooled connection instead.
func (q *Queue) fetchAndLock(ctx context.Context, topic string) (int64, *message.Message, bool) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		if ctx.Err() == nil {
			q.logger.Error("Failed to begin fetch transaction", err, nil)
		}
		return 0, nil, false
	}
	defer rollback(tx, q.logger)

	now := time.Now().UTC().UnixMilli()

	var (
		id       int64
		uuid     string
		payload  []byte
		metaJSON string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, uuid, payload, metadata
		FROM messages
		WHERE topic = ?
		AND available_at <= ?
		AND (locked_until IS NULL OR locked_until < ?)
		ORDER BY available_at ASC
		LIMIT 1
	`, topic, now, now).Scan(&id, &uuid, &payload, &metaJSON)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) && ctx.Err() == nil {
			q.logger.Error("Failed to fetch queued message", err, watermill.LogFields{"topic": topic})
		}
		return 0, nil, false
	}

	lockedUntil := now + q.cfg.LockTimeout.Milliseconds()
	if _, err := tx.ExecContext(ctx, `UPDATE messages SET locked_until = ? WHERE id = ?`, lockedUntil, id); err != nil {
		if ctx.Err() == nil {
			q.logger.Error("Failed to lock queued message", err, nil)
		}
		return 0, nil, false
	}
	if err := tx.Commit(); err != nil {
		if ctx.Err() == nil {
			q.logger.Error("Failed to commit message lock", err, nil)
		}
		return 0, nil, false
	}

	msg := message.NewMessage(uuid, payload)
	if metaJSON != "" {
		if err := sonic.ConfigStd.Unmarshal([]byte(metaJSON), &msg.Metadata); err != nil {
			q.logger.Error("Failed to decode message metadata", err, watermill.LogFields{"message_id": uuid})
		}
	}
	return id, msg, true
}

// await blocks until the subscriber resolves the message. Acked rows are
// deleted; nacked rows are requeued with backoff or dead-lettered.
func (q *Queue) await(ctx context.Context, id int64, topic string, msg *message.Message) bool {
	select {
	case <-msg.Acked():
		q.ack(id)
		return true
	case <-msg.Nacked():
		q.requeueOrDeadLetter(id, topic)
		return true
	case <-ctx.Done():
		q.unlock(id)
	case <-q.done:
		q.unlock(id)
	}
	return false
}

func (q *Queue) ack(id int64) {
	if _, err := q.db.Exec(`DELETE FROM messages WHERE id = ?`, id); err != nil {
		q.logger.Error("Failed to ack queued message", err, nil)
	}
}

func (q *Queue) requeueOrDeadLetter(id int64, topic string) {
	var retryCount int
	if err := q.db.QueryRow(`SELECT retry_count FROM messages WHERE id = ?`, id).Scan(&retryCount); err != nil {
		q.logger.Error("Failed to read retry count", err, nil)
		return
	}

	if retryCount >= q.cfg.MaxRetries {
		q.deadLetter(id, topic)
		return
	}

	availableAt := time.Now().UTC().Add(retryBackoff(retryCount)).UnixMilli()
	_, err := q.db.Exec(`
		UPDATE messages
		SET retry_count = retry_count + 1,
		    locked_until = NULL,
		    available_at = ?
		WHERE id = ?
	`, availableAt, id)
	if err != nil {
		q.logger.Error("Failed to requeue nacked message", err, nil)
	}
}

// retryBackoff doubles with each redelivery, capped at 64 seconds.
func retryBackoff(retryCount int) time.Duration {
	if retryCount > 6 {
		retryCount = 6
	}
	return time.Duration(1<<uint(retryCount)) * time.Second
}

func (q *Queue) deadLetter(id int64, topic string) {
	_, err := q.db.Exec(`
		INSERT INTO dead_letters (uuid, topic, payload, metadata, reason, failed_at, retry_count)
		SELECT uuid, topic, payload, metadata, 'max retries exceeded', ?, retry_count
		FROM messages WHERE id = ?
	`, time.Now().UTC().UnixMilli(), id)
	if err != nil {
		q.logger.Error("Failed to dead-letter message", err, watermill.LogFields{"topic": topic})
		return
	}

	if _, err := q.db.Exec(`DELETE FROM messages WHERE id = ?`, id); err != nil {
		q.logger.Error("Failed to delete dead-lettered message", err, nil)
	}
}

func (q *Queue) unlock(id int64) {
	if _, err := q.db.Exec(`UPDATE messages SET locked_until = NULL WHERE id = ?`, id); err != nil {
		q.logger.Error("Failed to unlock queued message", err, nil)
	}
}

// Close stops all polling goroutines and closes the database. Close is
// idempotent; the bridge closes the queue once as publisher and once as
// subscriber.
func (q *Queue) Close() error {
	q.closedMu.Lock()
	if q.closed {
		q.closedMu.Unlock()
		return nil
	}
	q.closed = true
	close(q.done)
	q.closedMu.Unlock()

	q.wg.Wait()
	return q.db.Close()
}

func (q *Queue) isClosed() bool {
	q.closedMu.RLock()
	defer q.closedMu.RUnlock()
	return q.closed
}

// PendingCount reports how many messages wait on the topic, delayed ones
// included.
func (q *Queue) PendingCount(ctx context.Context, topic string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE topic = ?`, topic).Scan(&count)
	return count, err
}

// DeadLetterCount reports how many messages failed out of the topic.
func (q *Queue) DeadLetterCount(ctx context.Context, topic string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letters WHERE topic = ?`, topic).Scan(&count)
	return count, err
}

// rollback is deferred around write transactions; ErrTxDone after a commit
// is the normal path.
func rollback(tx *sql.Tx, logger watermill.LoggerAdapter) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logger.Error("Failed to roll back queue transaction", err, nil)
	}
}
