package ingest

import (
	"log"

	"achievibit/internal"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPublisher publishes a notification after every applied delivery.
func WithPublisher(pub internal.Publisher) Option {
	return func(p *Pipeline) {
		p.publisher = pub
	}
}

// WithRules picks notification topics. Without rules, or when none match,
// the default topic is used.
func WithRules(rules *internal.RuleEngine) Option {
	return func(p *Pipeline) {
		p.rules = rules
	}
}

// WithTopic sets the default notification topic.
func WithTopic(topic string) Option {
	return func(p *Pipeline) {
		if topic != "" {
			p.topic = topic
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *log.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}
