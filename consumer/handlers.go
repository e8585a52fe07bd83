package main

import (
	"context"
	"errors"
	"log"

	"achievibit/pkg/consumer"
	"achievibit/pkg/storage"
)

// changeLogger prints every change with the pull request state it left behind.
type changeLogger struct {
	store  storage.EntityStore
	logger *log.Logger
}

func (h *changeLogger) Handle(ctx context.Context, change *consumer.Change) error {
	if change.SelfHealed {
		h.logger.Printf("self-healed prid=%s event=%s", change.PRID, change.Key())
	}
	if change.PRID == "" {
		h.logger.Printf("topic=%s event=%s repository=%s", change.Topic, change.Key(), change.Repository)
		return nil
	}
	pr, err := h.store.FindPullRequest(ctx, change.PRID)
	if errors.Is(err, storage.ErrNotFound) {
		h.logger.Printf("topic=%s event=%s prid=%s not stored", change.Topic, change.Key(), change.PRID)
		return nil
	}
	if err != nil {
		return err
	}
	h.logger.Printf("topic=%s event=%s prid=%s status=%s labels=%d reviewers=%d comments=%d",
		change.Topic, change.Key(), pr.PRID, pr.Status, len(pr.Labels), len(pr.Reviewers), len(pr.ReviewComments))
	return nil
}
