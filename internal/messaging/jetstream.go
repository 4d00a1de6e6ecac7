package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Config configures the JetStream connection shared by publishers and
// consumers of one service.
type Config struct {
	// URL is the NATS server URL (e.g. "nats://nats:4222").
	URL string

	// Name identifies the client connection in broker monitoring.
	Name string

	// Stream is the JetStream stream holding integration events.
	Stream string

	// Subjects are the subject patterns bound to the stream.
	Subjects []string

	// ConnectTimeout caps the initial connection attempt.
	ConnectTimeout time.Duration

	// DuplicateWindow is how long the broker remembers message IDs.
	DuplicateWindow time.Duration

	// Logger for operational logging. If nil, uses slog.Default().
	Logger *slog.Logger
}

func (c Config) applyDefaults() Config {
	if c.Stream == "" {
		c.Stream = "MOMENTUM"
	}
	if len(c.Subjects) == 0 {
		c.Subjects = []string{"billing.>", "ledger.>"}
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.DuplicateWindow <= 0 {
		c.DuplicateWindow = 2 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Conn wraps one NATS connection with its JetStream context.
type Conn struct {
	config Config
	nc     *nats.Conn
	js     nats.JetStreamContext
}

// Connect dials the broker and ensures the event stream exists.
func Connect(config Config) (*Conn, error) {
	config = config.applyDefaults()
	if config.URL == "" {
		return nil, errors.New("nats url is required")
	}

	nc, err := nats.Connect(
		config.URL,
		nats.Name(config.Name),
		nats.Timeout(config.ConnectTimeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				config.Logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			config.Logger.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", config.URL, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("open jetstream context: %w", err)
	}

	conn := &Conn{config: config, nc: nc, js: js}
	if err := conn.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}
	return conn, nil
}

func (c *Conn) ensureStream() error {
	_, err := c.js.StreamInfo(c.config.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("inspect stream %s: %w", c.config.Stream, err)
	}

	_, err = c.js.AddStream(&nats.StreamConfig{
		Name:       c.config.Stream,
		Subjects:   c.config.Subjects,
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		Duplicates: c.config.DuplicateWindow,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", c.config.Stream, err)
	}
	c.config.Logger.Info("created jetstream stream", "stream", c.config.Stream, "subjects", c.config.Subjects)
	return nil
}

// Publish sends one envelope to a topic with broker-side deduplication.
func (c *Conn) Publish(ctx context.Context, topic string, data []byte, msgID string) error {
	opts := []nats.PubOpt{nats.Context(ctx), nats.ExpectStream(c.config.Stream)}
	if msgID != "" {
		opts = append(opts, nats.MsgId(msgID))
	}
	if _, err := c.js.Publish(topic, data, opts...); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close drains the connection, letting in-flight acks finish.
func (c *Conn) Close() {
	if c == nil || c.nc == nil {
		return
	}
	if err := c.nc.Drain(); err != nil {
		c.config.Logger.Warn("drain nats connection", "error", err)
		c.nc.Close()
	}
}

// ConsumerConfig tunes one durable pull consumer.
type ConsumerConfig struct {
	// Subject filters deliveries, supporting NATS wildcards.
	Subject string

	// Durable names the consumer so progress survives restarts.
	Durable string

	// Batch is how many messages one fetch requests.
	Batch int

	// FetchWait caps how long a fetch waits for new messages.
	FetchWait time.Duration

	// MaxDeliver caps redeliveries before the broker gives up on a message.
	MaxDeliver int

	// AckWait is how long the broker waits for an ack before redelivery.
	AckWait time.Duration
}

func (c ConsumerConfig) applyDefaults() ConsumerConfig {
	if c.Batch <= 0 {
		c.Batch = 16
	}
	if c.FetchWait <= 0 {
		c.FetchWait = 5 * time.Second
	}
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = 5
	}
	if c.AckWait <= 0 {
		c.AckWait = 30 * time.Second
	}
	return c
}

// Consumer is a durable pull consumer on the event stream.
type Consumer struct {
	config ConsumerConfig
	sub    *nats.Subscription
	logger *slog.Logger
}

// PullConsumer binds a durable pull consumer to the stream.
func (c *Conn) PullConsumer(config ConsumerConfig) (*Consumer, error) {
	config = config.applyDefaults()
	if config.Subject == "" {
		return nil, errors.New("consumer subject is required")
	}
	if config.Durable == "" {
		return nil, errors.New("consumer durable name is required")
	}

	sub, err := c.js.PullSubscribe(
		config.Subject,
		config.Durable,
		nats.BindStream(c.config.Stream),
		nats.AckWait(config.AckWait),
		nats.MaxDeliver(config.MaxDeliver),
	)
	if err != nil {
		return nil, fmt.Errorf("pull subscribe %s: %w", config.Subject, err)
	}
	return &Consumer{config: config, sub: sub, logger: c.config.Logger}, nil
}

// Run fetches and dispatches messages until the context ends.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := c.sub.Fetch(c.config.Batch, nats.MaxWait(c.config.FetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Error("fetch messages", "subject", c.config.Subject, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range msgs {
			c.dispatch(ctx, msg, handler)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg *nats.Msg, handler Handler) {
	err := handler(ctx, msg.Subject, msg.Data)
	switch decide(err) {
	case ackMessage:
		if ackErr := msg.Ack(); ackErr != nil {
			c.logger.Warn("ack message", "subject", msg.Subject, "error", ackErr)
		}
	case termMessage:
		c.logger.Error("dropping message after permanent failure", "subject", msg.Subject, "error", err)
		if termErr := msg.Term(); termErr != nil {
			c.logger.Warn("terminate message", "subject", msg.Subject, "error", termErr)
		}
	case nakMessage:
		c.logger.Warn("requeueing message", "subject", msg.Subject, "error", err)
		if nakErr := msg.Nak(); nakErr != nil {
			c.logger.Warn("nak message", "subject", msg.Subject, "error", nakErr)
		}
	}
}

type ackAction int

const (
	ackMessage ackAction = iota
	nakMessage
	termMessage
)

// decide maps a handler outcome to the broker acknowledgement.
func decide(err error) ackAction {
	switch {
	case err == nil:
		return ackMessage
	case IsPermanent(err):
		return termMessage
	default:
		return nakMessage
	}
}
