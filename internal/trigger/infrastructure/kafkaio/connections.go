package kafkaio

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"daq-trigger/internal/trigger/application"
	trigger "daq-trigger/internal/trigger/domain"
)

// Config selects the brokers and topic layout.
type Config struct {
	Brokers     []string      `yaml:"brokers"`
	TopicPrefix string        `yaml:"topic_prefix"`
	GroupID     string        `yaml:"group_id"`
	MaxWait     time.Duration `yaml:"max_wait"`
	// WriteTimeout is how long a write waits for the broker acknowledgement.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultWriteTimeout applies when Config.WriteTimeout is unset.
const DefaultWriteTimeout = 5 * time.Second

// Connections resolves connection names to Kafka topics named TopicPrefix+name.
type Connections struct {
	cfg    Config
	logger logrus.FieldLogger

	newReader func(topic, group string) messageReader
	newWriter func(topic string) messageWriter

	mu      sync.Mutex
	readers map[string]*Reader[trigger.Candidate]
	writers map[string]*Writer[trigger.Decision]
}

// NewConnections validates cfg and builds a resolver.
func NewConnections(cfg Config, logger logrus.FieldLogger) (*Connections, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka connections: no brokers configured")
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "daq-trigger"
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 50 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	c := newConnections(cfg, logger)
	c.newReader = func(topic, group string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    topic,
			GroupID:  group,
			MinBytes: 1,
			MaxBytes: 10e6,
			MaxWait:  cfg.MaxWait,
		})
	}
	c.newWriter = func(topic string) messageWriter {
		return newKafkaWriter(cfg, topic, nil)
	}
	return c, nil
}

// newKafkaWriter builds a synchronous writer that sends each batch once, so a
// decision is never produced twice. A nil transport uses kafka.DefaultTransport.
func newKafkaWriter(cfg Config, topic string, transport kafka.RoundTripper) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  1,
		BatchTimeout: time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		Transport:    transport,
	}
}

func newConnections(cfg Config, logger logrus.FieldLogger) *Connections {
	return &Connections{
		cfg:     cfg,
		logger:  logger.WithField("component", "kafkaio"),
		readers: map[string]*Reader[trigger.Candidate]{},
		writers: map[string]*Writer[trigger.Decision]{},
	}
}

func (c *Connections) topic(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", application.ErrUnknownConnection
	}
	return c.cfg.TopicPrefix + name, nil
}

// CandidateSource returns the shared reader for name.
func (c *Connections) CandidateSource(name string) (application.CandidateSource, error) {
	topic, err := c.topic(name)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.readers[topic]; ok {
		return r, nil
	}
	r := newReader[trigger.Candidate](topic, c.newReader(topic, c.cfg.GroupID))
	c.readers[topic] = r
	c.logger.WithField("topic", topic).Info("candidate reader created")
	return r, nil
}

// DecisionSink returns the shared writer for name.
func (c *Connections) DecisionSink(name string) (application.DecisionSink, error) {
	topic, err := c.topic(name)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.writers[topic]; ok {
		return w, nil
	}
	w := newWriter(topic, c.newWriter(topic), decisionKey, c.cfg.WriteTimeout)
	c.writers[topic] = w
	c.logger.WithField("topic", topic).Info("decision writer created")
	return w, nil
}

// InhibitSource returns a subscriber; each subscription opens its own reader.
func (c *Connections) InhibitSource(name string) (application.InhibitSource, error) {
	topic, err := c.topic(name)
	if err != nil {
		return nil, err
	}
	group := c.cfg.GroupID + "-inhibit"
	return &InhibitSubscriber{
		topic:     topic,
		newReader: func() messageReader { return c.newReader(topic, group) },
		logger:    c.logger,
	}, nil
}

// CandidateWriter returns a writer producing candidates onto name, used by the
// timing candidate maker and replay tooling.
func (c *Connections) CandidateWriter(name string) (*Writer[trigger.Candidate], error) {
	topic, err := c.topic(name)
	if err != nil {
		return nil, err
	}
	return newWriter(topic, c.newWriter(topic), candidateKey, c.cfg.WriteTimeout), nil
}

// SignalReader returns a reader decoding values of type T from name.
func SignalReader[T any](c *Connections, name string) (*Reader[T], error) {
	topic, err := c.topic(name)
	if err != nil {
		return nil, err
	}
	return newReader[T](topic, c.newReader(topic, c.cfg.GroupID)), nil
}

// Close closes every cached reader and writer.
func (c *Connections) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for topic, r := range c.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.readers, topic)
	}
	for topic, w := range c.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.writers, topic)
	}
	return errors.Join(errs...)
}
