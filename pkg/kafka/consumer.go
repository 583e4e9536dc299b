package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	applogger "SignalFuse/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// ErrPermanent marks handler errors that retrying cannot fix. Such messages
// are parked and committed at once.
var ErrPermanent = errors.New("permanent failure")

// MessageHandler handles the messages of one topic.
type MessageHandler interface {
	Topic() string
	Handle(ctx context.Context, payload []byte) error
}

// Consumer reads every registered topic in one consumer group and hands
// messages to a worker pool. Messages of one partition are handled one at a
// time and committed only once settled.
type Consumer struct {
	cfg      ConsumerConfig
	log      *applogger.Logger
	metrics  *clientMetrics
	hook     ConsumerHook
	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	dlq      *kafka.Writer

	queue    chan kafka.Message
	stop     chan struct{}
	stopOnce sync.Once
	fetchers sync.WaitGroup
	workers  sync.WaitGroup

	partMu sync.Mutex
	parts  map[partitionKey]*sync.Mutex
}

type partitionKey struct {
	topic     string
	partition int
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errNoBrokers
	}
	l := cfg.Logger
	if l == nil {
		l = applogger.NewNop()
	}

	c := &Consumer{
		cfg:      cfg,
		log:      l.With(applogger.String("component", "kafka_consumer")),
		metrics:  kafkaMetrics(),
		hook:     NoopHook{},
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]*kafka.Reader),
		queue:    make(chan kafka.Message, cfg.BufferSize),
		stop:     make(chan struct{}),
		parts:    make(map[partitionKey]*sync.Mutex),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Topic: cfg.DLQTopic, Balancer: &kafka.LeastBytes{}}
	}
	return c, nil
}

// RegisterHandler binds a handler to its topic. The first registration of a
// topic wins.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	topic := h.Topic()
	if _, dup := c.handlers[topic]; dup {
		c.log.Warn("kafka handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = h
}

// WithConsumerHook replaces the lifecycle hook. Call before Start.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("kafka: no handlers registered")
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			GroupID:  c.cfg.GroupID,
			Topic:    topic,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
	}
	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.workers.Add(1)
		go c.work()
	}
	for topic, r := range c.readers {
		c.fetchers.Add(1)
		go c.fetch(topic, r)
	}
	c.log.Info("kafka consumer started",
		applogger.String("group", c.cfg.GroupID),
		applogger.Int("topics", len(c.readers)),
		applogger.Int("workers", c.cfg.WorkerCount))
	return nil
}

// Stop closes the readers, then lets the workers drain the queue. It returns
// early with an error when ctx expires.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stop)
		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("kafka reader close failed", applogger.String("topic", topic), applogger.Error(cerr))
			}
		}
		if err = wait(ctx, &c.fetchers); err != nil {
			return
		}
		close(c.queue)
		if err = wait(ctx, &c.workers); err != nil {
			return
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.log.Warn("kafka dlq close failed", applogger.Error(cerr))
			}
		}
		c.log.Info("kafka consumer stopped")
	})
	return err
}

func wait(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("kafka consumer stop: %w", ctx.Err())
	}
}

func (c *Consumer) stopping() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

func (c *Consumer) fetch(topic string, r *kafka.Reader) {
	defer c.fetchers.Done()
	for !c.stopping() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		msg, err := r.FetchMessage(ctx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || c.stopping() {
				continue
			}
			c.log.Warn("kafka fetch failed", applogger.String("topic", topic), applogger.Error(err))
			time.Sleep(c.cfg.BackoffMin)
			continue
		}
		select {
		case c.queue <- msg:
			c.metrics.queued.WithLabelValues(topic).Set(float64(len(c.queue)))
		case <-c.stop:
			return
		}
	}
}

func (c *Consumer) work() {
	defer c.workers.Done()
	for msg := range c.queue {
		if h, ok := c.handlers[msg.Topic]; ok {
			c.process(h, msg)
		}
	}
}

func (c *Consumer) process(h MessageHandler, msg kafka.Message) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic in kafka handler", applogger.String("topic", msg.Topic), applogger.Any("panic", r))
			c.metrics.observeHandle(msg.Topic, "panic", time.Since(start))
		}
	}()

	lock := c.partitionLock(msg.Topic, msg.Partition)
	lock.Lock()
	defer lock.Unlock()

	attempts, err := c.attempt(h, msg)
	outcome := "ok"
	if err != nil {
		outcome = "failed"
		c.hook.OnError(context.Background(), msg.Topic, msg, msg.Value, err)
		c.log.Error("kafka message failed",
			applogger.String("topic", msg.Topic),
			applogger.Int("partition", msg.Partition),
			applogger.Int64("offset", msg.Offset),
			applogger.Int("attempts", attempts),
			applogger.Error(err))
		if c.park(msg, err) {
			outcome = "parked"
		}
	}
	// a message that can never succeed is committed so it cannot stall its
	// partition; a retryable one without a DLQ is left for redelivery
	if err == nil || c.dlq != nil || errors.Is(err, ErrPermanent) {
		c.commit(msg)
	}
	c.metrics.observeHandle(msg.Topic, outcome, time.Since(start))
}

// attempt runs the handler through the hook until it succeeds, fails
// permanently or runs out of retries.
func (c *Consumer) attempt(h MessageHandler, msg kafka.Message) (int, error) {
	for n := 1; ; n++ {
		ctx, hmsg, data, err := c.hook.BeforeHandle(context.Background(), msg.Topic, msg, msg.Value)
		if err != nil {
			return n, err
		}
		err = h.Handle(ctx, data)
		c.hook.AfterHandle(ctx, msg.Topic, hmsg, data, err)
		if err == nil || n > c.cfg.RetryMax || errors.Is(err, ErrPermanent) {
			return n, err
		}
		c.hook.OnError(ctx, msg.Topic, hmsg, data, err)
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, n)):
		case <-c.stop:
			return n, err
		}
	}
}

func (c *Consumer) park(msg kafka.Message, cause error) bool {
	if c.dlq == nil {
		return false
	}
	headers := make([]kafka.Header, 0, len(msg.Headers)+2)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "source_topic", Value: []byte(msg.Topic)},
		kafka.Header{Key: "error", Value: []byte(cause.Error())})
	err := c.dlq.WriteMessages(context.Background(), kafka.Message{
		Key: msg.Key, Value: msg.Value, Headers: headers, Time: time.Now(),
	})
	if err != nil {
		c.log.Error("kafka dlq write failed", applogger.String("dlq", c.cfg.DLQTopic), applogger.Error(err))
		return false
	}
	return true
}

func (c *Consumer) commit(msg kafka.Message) {
	r := c.readers[msg.Topic]
	if r == nil {
		return
	}
	const tries = 3
	var err error
	for n := 1; n <= tries; n++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, msg)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, n))
	}
	c.log.Error("kafka commit failed",
		applogger.String("topic", msg.Topic),
		applogger.Int64("offset", msg.Offset),
		applogger.Error(err))
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	key := partitionKey{topic, partition}
	c.partMu.Lock()
	defer c.partMu.Unlock()
	m, ok := c.parts[key]
	if !ok {
		m = &sync.Mutex{}
		c.parts[key] = m
	}
	return m
}

// backoffWithJitter doubles min per attempt up to max and subtracts up to
// half of it at random.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	d := max
	if attempt < 31 {
		if e := min << uint(attempt-1); e > 0 && e < max {
			d = e
		}
	}
	if half := int64(d) / 2; half > 0 {
		d -= time.Duration(rand.Int63n(half))
	}
	return d
}
