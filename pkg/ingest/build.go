package ingest

import (
	"achievibit/internal"
	"achievibit/pkg/engine"
	ghprovider "achievibit/pkg/providers/github"
	"achievibit/pkg/storage"
)

// Build wires the GitHub adapter, router and executor for store and, when
// notifications are enabled, the rule engine and publisher. The returned
// func closes the publisher.
func Build(config internal.Config, store storage.EntityStore) (*Pipeline, func(), error) {
	opts := []Option{
		WithTopic(config.Notifications.Topic),
		WithLogger(internal.NewLogger("ingest")),
	}
	closeFn := func() {}

	if config.Notifications.Enabled {
		rules, err := internal.NewRuleEngine(internal.RulesConfig{
			Rules:  config.Rules,
			Strict: config.RulesStrict,
		})
		if err != nil {
			return nil, nil, err
		}
		publisher, err := internal.NewPublisher(config.Watermill)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, WithRules(rules), WithPublisher(publisher))
		closeFn = func() { _ = publisher.Close() }
	}

	pipeline := NewPipeline(
		ghprovider.NewAdapter(),
		engine.NewRouter(engine.NewNormalizer()),
		NewExecutor(store, internal.NewLogger("executor")),
		opts...,
	)
	return pipeline, closeFn, nil
}
