package internal

import (
	"fmt"
	"strings"

	wmamaqp "github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	wmsql "github.com/ThreeDotsLabs/watermill-sql/pkg/sql"
)

// DriverList returns the configured drivers, lower-cased and deduplicated.
// Drivers wins over Driver; gochannel is used when neither is set.
func (c WatermillConfig) DriverList() []string {
	values := c.Drivers
	if len(values) == 0 {
		values = []string{c.Driver}
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	if len(out) == 0 {
		return []string{"gochannel"}
	}
	return out
}

// Settings maps the configured mode onto a Watermill AMQP topology.
func (c AMQPConfig) Settings() (wmamaqp.Config, error) {
	if c.URL == "" {
		return wmamaqp.Config{}, fmt.Errorf("amqp url is required")
	}
	switch strings.ToLower(c.Mode) {
	case "", "durable_queue":
		return wmamaqp.NewDurableQueueConfig(c.URL), nil
	case "nondurable_queue":
		return wmamaqp.NewNonDurableQueueConfig(c.URL), nil
	case "durable_pubsub":
		return wmamaqp.NewDurablePubSubConfig(c.URL, nil), nil
	case "nondurable_pubsub":
		return wmamaqp.NewNonDurablePubSubConfig(c.URL, nil), nil
	default:
		return wmamaqp.Config{}, fmt.Errorf("unsupported amqp mode: %s", c.Mode)
	}
}

// Adapters returns the schema and offsets adapters for the configured dialect.
func (c SQLConfig) Adapters() (wmsql.SchemaAdapter, wmsql.OffsetsAdapter, error) {
	switch strings.ToLower(c.Dialect) {
	case "postgres", "postgresql":
		return wmsql.DefaultPostgreSQLSchema{}, wmsql.DefaultPostgreSQLOffsetsAdapter{}, nil
	case "mysql":
		return wmsql.DefaultMySQLSchema{}, wmsql.DefaultMySQLOffsetsAdapter{}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported sql dialect: %s", c.Dialect)
	}
}

// TargetURL resolves the URL a notification on topic is posted to. In
// topic_url mode the topic is the URL; in base_url mode it is appended.
func (c HTTPConfig) TargetURL(topic string) (string, error) {
	switch strings.ToLower(c.Mode) {
	case "topic_url":
		if topic == "" {
			return "", fmt.Errorf("http topic url is empty")
		}
		return topic, nil
	case "base_url":
		if c.BaseURL == "" {
			return "", fmt.Errorf("http base_url is empty")
		}
		base := strings.TrimRight(c.BaseURL, "/")
		if topic == "" {
			return base, nil
		}
		return base + "/" + strings.TrimLeft(topic, "/"), nil
	default:
		return "", fmt.Errorf("unsupported http mode: %s", c.Mode)
	}
}
