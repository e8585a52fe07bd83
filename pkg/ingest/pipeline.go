package ingest

import (
	"context"
	"errors"
	"log"

	"achievibit/internal"
	"achievibit/pkg/engine"
	"achievibit/pkg/event"
)

const defaultTopic = "achievibit.changes"

// Delivery is one webhook body as received from a provider.
type Delivery struct {
	Provider  string `json:"provider"`
	EventType string `json:"event_type"`
	ID        string `json:"delivery_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Payload   []byte `json:"payload"`
}

// Decoder turns a provider payload into an intermediate event.
type Decoder interface {
	Decode(eventType, delivery string, raw []byte) (*event.Event, error)
}

// Plan is the routed form of a delivery, before anything is written.
type Plan struct {
	Event   *event.Event
	Intents []engine.Intent
}

// Pipeline runs a delivery through decode, routing, the executor and the
// change notification.
type Pipeline struct {
	decoder   Decoder
	router    *engine.Router
	executor  *Executor
	publisher internal.Publisher
	rules     *internal.RuleEngine
	topic     string
	logger    *log.Logger
}

// NewPipeline wires decoder, router and executor.
func NewPipeline(decoder Decoder, router *engine.Router, executor *Executor, opts ...Option) *Pipeline {
	p := &Pipeline{
		decoder:  decoder,
		router:   router,
		executor: executor,
		topic:    defaultTopic,
		logger:   internal.NewLogger("ingest"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan decodes and routes d without touching the store. It returns the
// same errors Process would before applying anything.
func (p *Pipeline) Plan(d Delivery) (Plan, error) {
	evt, err := p.decoder.Decode(d.EventType, d.ID, d.Payload)
	if err != nil {
		internal.IncParseError(d.Provider)
		return Plan{}, err
	}
	intents, err := p.router.Route(evt)
	if err != nil {
		if errors.Is(err, event.ErrIgnored) {
			internal.IncIgnored(evt.Key().String())
		}
		return Plan{Event: evt}, err
	}
	return Plan{Event: evt, Intents: intents}, nil
}

// Process applies d and publishes a notification for it. Ignored deliveries
// return an error wrapping event.ErrIgnored and change nothing.
func (p *Pipeline) Process(ctx context.Context, d Delivery) (Result, error) {
	logger := internal.WithRequestID(p.logger, d.RequestID)
	plan, err := p.Plan(d)
	if err != nil {
		if errors.Is(err, event.ErrIgnored) {
			logger.Printf("delivery ignored event=%s: %v", d.EventType, err)
		} else {
			logger.Printf("delivery rejected event=%s: %v", d.EventType, err)
		}
		return Result{}, err
	}

	key := plan.Event.Key()
	result, err := p.executor.apply(ctx, logger, key, plan.Intents)
	if err != nil {
		logger.Printf("apply failed event=%s prid=%s: %v", key, result.PRID, err)
		return result, err
	}
	internal.IncApplied(key.String())
	logger.Printf("delivery applied event=%s prid=%s intents=%d self_healed=%t", key, result.PRID, result.Applied, result.SelfHealed)

	p.notify(ctx, logger, d, plan.Event, result)
	return result, nil
}

func (p *Pipeline) notify(ctx context.Context, logger *log.Logger, d Delivery, evt *event.Event, result Result) {
	if p.publisher == nil {
		return
	}
	n := internal.Notification{
		Provider:   evt.Provider,
		Event:      evt.Type,
		Action:     evt.Action,
		Delivery:   evt.Delivery,
		RequestID:  d.RequestID,
		PRID:       result.PRID,
		Intents:    make([]string, 0, len(result.Kinds)),
		SelfHealed: result.SelfHealed,
		Payload:    internal.DecodePayload(d.Payload),
	}
	if repo, ok := evt.Repository.Get(); ok {
		n.Repository = repo.Fullname
	}
	for _, kind := range result.Kinds {
		n.Intents = append(n.Intents, string(kind))
	}

	matches := p.rules.Evaluate(n)
	if len(matches) == 0 {
		matches = []internal.RuleMatch{{Topic: p.topic}}
	}
	for _, match := range matches {
		if err := p.publisher.PublishForDrivers(ctx, match.Topic, n, match.Drivers); err != nil {
			logger.Printf("publish %s failed: %v", match.Topic, err)
		}
	}
}
