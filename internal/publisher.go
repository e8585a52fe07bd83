package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmamaqp "github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	wmhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	wmkafka "github.com/ThreeDotsLabs/watermill-kafka/pkg/kafka"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/pkg/nats"
	wmsql "github.com/ThreeDotsLabs/watermill-sql/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	stan "github.com/nats-io/stan.go"
)

// Publisher sends change notifications to one or more Watermill drivers.
type Publisher interface {
	Publish(ctx context.Context, topic string, n Notification) error
	PublishForDrivers(ctx context.Context, topic string, n Notification, drivers []string) error
	Close() error
}

// PublisherFactory builds the Watermill publisher of one driver. The returned
// close func, when non-nil, runs after the publisher is closed.
type PublisherFactory func(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error)

var publisherFactories = map[string]PublisherFactory{
	"gochannel": goChannelPublisher,
	"http":      httpPublisher,
	"kafka":     kafkaPublisher,
	"nats":      natsPublisher,
	"amqp":      amqpPublisher,
	"sql":       sqlPublisher,
}

// RegisterPublisherDriver adds or replaces the factory used for name.
func RegisterPublisherDriver(name string, factory PublisherFactory) {
	if name == "" || factory == nil {
		return
	}
	publisherFactories[strings.ToLower(name)] = factory
}

var (
	buildAttempts = 10
	buildDelay    = 2 * time.Second
)

// NewPublisher builds a publisher for every configured driver. Unknown
// drivers and drivers that keep failing to connect are skipped; it fails only
// when none is left.
func NewPublisher(cfg WatermillConfig) (Publisher, error) {
	logger := watermill.NewStdLogger(false, false)

	mux := &publisherMux{
		sinks:    make(map[string]*sink),
		attempts: cfg.PublishRetry.Attempts,
		delay:    time.Duration(cfg.PublishRetry.DelayMS) * time.Millisecond,
	}
	for _, driver := range cfg.DriverList() {
		factory, ok := publisherFactories[driver]
		if !ok {
			logger.Error("unknown publisher driver, skipping", nil, watermill.LogFields{"driver": driver})
			continue
		}
		s, err := retry(buildAttempts, buildDelay, func() (*sink, error) {
			pub, closeFn, err := factory(cfg, logger)
			if err != nil {
				return nil, err
			}
			return &sink{publisher: pub, closeFn: closeFn}, nil
		})
		if err != nil {
			logger.Error("publisher init failed, skipping driver", err, watermill.LogFields{"driver": driver})
			continue
		}
		mux.sinks[driver] = s
		mux.order = append(mux.order, driver)
	}
	if len(mux.sinks) == 0 {
		return nil, errors.New("no publishers available")
	}
	return mux, nil
}

func retry[T any](attempts int, delay time.Duration, fn func() (T, error)) (T, error) {
	if attempts < 1 {
		attempts = 1
	}
	var (
		value T
		err   error
	)
	for i := 0; i < attempts; i++ {
		if value, err = fn(); err == nil {
			return value, nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return value, err
}

// sink is one built driver.
type sink struct {
	publisher message.Publisher
	closeFn   func() error
}

func (s *sink) close() error {
	err := s.publisher.Close()
	if s.closeFn != nil {
		err = errors.Join(err, s.closeFn())
	}
	return err
}

// newNotificationMessage encodes n as the message payload and copies its
// routing fields into metadata so consumers can filter without decoding.
func newNotificationMessage(ctx context.Context, n Notification) (*message.Message, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	for key, value := range map[string]string{
		"provider":   n.Provider,
		"event":      n.Event,
		"action":     n.Action,
		"prid":       n.PRID,
		"repository": n.Repository,
		"delivery":   n.Delivery,
		"request_id": n.RequestID,
	} {
		if value != "" {
			msg.Metadata.Set(key, value)
		}
	}
	return msg, nil
}

type publisherMux struct {
	sinks    map[string]*sink
	order    []string
	attempts int
	delay    time.Duration
}

func (m *publisherMux) Publish(ctx context.Context, topic string, n Notification) error {
	return m.PublishForDrivers(ctx, topic, n, nil)
}

// PublishForDrivers publishes to drivers, or to every built driver when
// drivers is empty. Each driver gets its own message and retry budget.
func (m *publisherMux) PublishForDrivers(ctx context.Context, topic string, n Notification, drivers []string) error {
	if len(drivers) == 0 {
		drivers = m.order
	}
	var errs error
	for _, driver := range drivers {
		key := strings.ToLower(driver)
		s, ok := m.sinks[key]
		if !ok {
			errs = errors.Join(errs, fmt.Errorf("unknown driver %s", driver))
			continue
		}
		_, err := retry(m.attempts, m.delay, func() (struct{}, error) {
			msg, err := newNotificationMessage(ctx, n)
			if err != nil {
				return struct{}{}, err
			}
			return struct{}{}, s.publisher.Publish(topic, msg)
		})
		if err != nil {
			IncPublishError(key)
			errs = errors.Join(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errs
}

func (m *publisherMux) Close() error {
	var errs error
	for _, driver := range m.order {
		errs = errors.Join(errs, m.sinks[driver].close())
	}
	return errs
}

func goChannelPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            cfg.GoChannel.OutputChannelBuffer,
		Persistent:                     cfg.GoChannel.Persistent,
		BlockPublishUntilSubscriberAck: cfg.GoChannel.BlockPublishUntilSubscriberAck,
	}, logger), nil, nil
}

func httpPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	if _, err := cfg.HTTP.TargetURL("changes"); err != nil {
		return nil, nil, err
	}
	pub, err := wmhttp.NewPublisher(wmhttp.PublisherConfig{
		MarshalMessageFunc: func(topic string, msg *message.Message) (*http.Request, error) {
			target, err := cfg.HTTP.TargetURL(topic)
			if err != nil {
				return nil, err
			}
			return wmhttp.DefaultMarshalMessageFunc(target, msg)
		},
	}, logger)
	return pub, nil, err
}

func kafkaPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil, errors.New("kafka brokers are required")
	}
	pub, err := wmkafka.NewPublisher(cfg.Kafka.Brokers, wmkafka.DefaultMarshaler{}, nil, logger)
	return pub, nil, err
}

func natsPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	if cfg.NATS.ClusterID == "" || cfg.NATS.ClientID == "" {
		return nil, nil, errors.New("nats cluster_id and client_id are required")
	}
	natsCfg := wmnats.StreamingPublisherConfig{
		ClusterID: cfg.NATS.ClusterID,
		ClientID:  cfg.NATS.ClientID,
		Marshaler: wmnats.GobMarshaler{},
	}
	if cfg.NATS.URL != "" {
		natsCfg.StanOptions = []stan.Option{stan.NatsURL(cfg.NATS.URL)}
	}
	pub, err := wmnats.NewStreamingPublisher(natsCfg, logger)
	return pub, nil, err
}

func amqpPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	settings, err := cfg.AMQP.Settings()
	if err != nil {
		return nil, nil, err
	}
	pub, err := wmamaqp.NewPublisher(settings, logger)
	return pub, nil, err
}

func sqlPublisher(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	if cfg.SQL.Driver == "" || cfg.SQL.DSN == "" {
		return nil, nil, errors.New("sql driver and dsn are required")
	}
	schema, _, err := cfg.SQL.Adapters()
	if err != nil {
		return nil, nil, err
	}
	db, err := sql.Open(cfg.SQL.Driver, cfg.SQL.DSN)
	if err != nil {
		return nil, nil, err
	}
	pub, err := wmsql.NewPublisher(db, wmsql.PublisherConfig{
		SchemaAdapter:        schema,
		AutoInitializeSchema: cfg.SQL.AutoInitializeSchema || cfg.SQL.InitializeSchema,
	}, logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return pub, db.Close, nil
}
