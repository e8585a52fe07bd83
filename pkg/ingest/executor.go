package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"

	"achievibit/internal"
	"achievibit/pkg/engine"
	"achievibit/pkg/event"
	"achievibit/pkg/storage"
)

// Result summarizes one applied delivery.
type Result struct {
	PRID       string
	Applied    int
	SelfHealed bool
	// Rejected counts status patches the store refused.
	Rejected int
	Kinds    []engine.Kind
}

// Executor applies intents against an EntityStore.
type Executor struct {
	store  storage.EntityStore
	locks  *keyedMutex
	logger *log.Logger
}

// NewExecutor returns an Executor writing to store.
func NewExecutor(store storage.EntityStore, logger *log.Logger) *Executor {
	if logger == nil {
		logger = internal.NewLogger("executor")
	}
	return &Executor{store: store, locks: newKeyedMutex(), logger: logger}
}

// Apply runs intents in order and stops at the first store error. Intents
// scoped to a pull request run under that pull request's lock.
func (e *Executor) Apply(ctx context.Context, key event.Key, intents []engine.Intent) (Result, error) {
	return e.apply(ctx, e.logger, key, intents)
}

func (e *Executor) apply(ctx context.Context, logger *log.Logger, key event.Key, intents []engine.Intent) (Result, error) {
	result := Result{PRID: engine.ScopedPRID(intents), Kinds: make([]engine.Kind, 0, len(intents))}
	if e.store == nil {
		return result, errors.New("entity store is not configured")
	}
	if result.PRID != "" {
		unlock := e.locks.Lock(result.PRID)
		defer unlock()
	}

	for _, intent := range intents {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		err := e.applyOne(ctx, logger, key, intent, &result)
		if errors.Is(err, storage.ErrStatusTransition) {
			result.Rejected++
			internal.IncStatusRejected(key.String())
			logger.Printf("status transition rejected prid=%s event=%s: %v", intent.PRID(), key, err)
			continue
		}
		if err != nil {
			internal.IncApplyError(string(intent.Kind()))
			return result, fmt.Errorf("%s: %w", intent.Kind(), err)
		}
		result.Applied++
		result.Kinds = append(result.Kinds, intent.Kind())
	}
	return result, nil
}

func (e *Executor) applyOne(ctx context.Context, logger *log.Logger, key event.Key, intent engine.Intent, result *Result) error {
	switch in := intent.(type) {
	case engine.UpsertUser:
		return e.store.UpsertUser(ctx, in.User)
	case engine.CreateRepository:
		return e.store.CreateRepository(ctx, in.Repository)
	case engine.CreatePullRequest:
		_, err := e.store.CreatePullRequest(ctx, in.PullRequest)
		return err
	case engine.EnsurePullRequest:
		created, err := e.store.CreatePullRequest(ctx, in.PullRequest)
		if err != nil {
			return err
		}
		if created {
			result.SelfHealed = true
			internal.IncSelfHeal(key.String())
			logger.Printf("self-healed pull request prid=%s event=%s", in.PullRequest.PRID, key)
		}
		return nil
	case engine.PatchPullRequest:
		return e.store.PatchPullRequest(ctx, in.ID, in.Patch)
	case engine.AddToSet:
		return e.store.AddToSet(ctx, in.ID, in.Field, in.Value)
	case engine.RemoveFromSet:
		return e.store.RemoveFromSet(ctx, in.ID, in.Field, in.Value)
	case engine.ReplaceSet:
		return e.store.ReplaceSet(ctx, in.ID, in.Field, in.Values)
	case engine.UpsertReviewComment:
		return e.store.UpsertReviewComment(ctx, in.ID, in.Comment)
	case engine.RemoveReviewComment:
		return e.store.RemoveReviewComment(ctx, in.ID, in.CommentID)
	case engine.UpsertReview:
		return e.store.UpsertReview(ctx, in.ID, in.Review)
	default:
		return fmt.Errorf("unknown intent %T", intent)
	}
}
