package queue

import (
	"context"
	"errors"
	"log"

	"achievibit/internal"
	"achievibit/pkg/event"
	"achievibit/pkg/ingest"

	"github.com/riverqueue/river"
)

// JobKind is the River kind of queued deliveries.
const JobKind = "achievibit.delivery"

// DeliveryArgs is the River job payload: one webhook delivery.
type DeliveryArgs struct {
	Delivery ingest.Delivery `json:"delivery"`
}

func (DeliveryArgs) Kind() string { return JobKind }

// Processor applies a delivery. *ingest.Pipeline implements it.
type Processor interface {
	Process(ctx context.Context, d ingest.Delivery) (ingest.Result, error)
}

// DeliveryWorker runs queued deliveries through the pipeline.
type DeliveryWorker struct {
	river.WorkerDefaults[DeliveryArgs]
	processor Processor
	logger    *log.Logger
}

func NewDeliveryWorker(processor Processor, logger *log.Logger) *DeliveryWorker {
	if logger == nil {
		logger = internal.NewLogger("queue")
	}
	return &DeliveryWorker{processor: processor, logger: logger}
}

func (w *DeliveryWorker) Work(ctx context.Context, job *river.Job[DeliveryArgs]) error {
	logger := internal.WithRequestID(w.logger, job.Args.Delivery.RequestID)
	logger.Printf("job=%d attempt=%d event=%s delivery=%s", job.ID, job.Attempt, job.Args.Delivery.EventType, job.Args.Delivery.ID)
	return w.process(ctx, logger, job.Args.Delivery)
}

// process maps pipeline errors onto River outcomes: ignored deliveries
// complete, deliveries that can never succeed are cancelled, everything
// else is returned for retry.
func (w *DeliveryWorker) process(ctx context.Context, logger *log.Logger, d ingest.Delivery) error {
	_, err := w.processor.Process(ctx, d)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, event.ErrIgnored):
		return nil
	case errors.Is(err, event.ErrMalformedPayload), errors.Is(err, event.ErrNotImplemented):
		logger.Printf("cancelling job event=%s: %v", d.EventType, err)
		return river.JobCancel(err)
	default:
		return err
	}
}
