package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"achievibit/internal"
	"achievibit/pkg/event"
	"achievibit/pkg/ingest"

	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	err   error
	calls int
}

func (f *fakeProcessor) Process(ctx context.Context, d ingest.Delivery) (ingest.Result, error) {
	f.calls++
	return ingest.Result{}, f.err
}

func TestDeliveryWorkerOutcomes(t *testing.T) {
	storeErr := errors.New("connection reset")
	cases := []struct {
		name      string
		err       error
		wantNil   bool
		wantIsErr error
	}{
		{name: "applied", wantNil: true},
		{name: "ignored", err: event.Ignored(event.Key{Type: "push"}, ""), wantNil: true},
		{name: "malformed", err: event.Malformed("repository"), wantIsErr: event.ErrMalformedPayload},
		{name: "not implemented", err: event.ErrNotImplemented, wantIsErr: event.ErrNotImplemented},
		{name: "store error", err: storeErr, wantIsErr: storeErr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			processor := &fakeProcessor{err: tc.err}
			worker := NewDeliveryWorker(processor, nil)
			err := worker.process(context.Background(), worker.logger, ingest.Delivery{EventType: "pull_request"})
			require.Equal(t, 1, processor.calls)
			if tc.wantNil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantIsErr)
		})
	}
}

func TestDeliveryWorkerCancelsPermanentFailures(t *testing.T) {
	worker := NewDeliveryWorker(&fakeProcessor{err: event.Malformed("pull_request")}, nil)
	err := worker.process(context.Background(), worker.logger, ingest.Delivery{})
	require.Error(t, err)
	require.Contains(t, strings.ToLower(err.Error()), "cancel")

	storeErr := errors.New("deadlock detected")
	worker = NewDeliveryWorker(&fakeProcessor{err: storeErr}, nil)
	require.Same(t, storeErr, worker.process(context.Background(), worker.logger, ingest.Delivery{}))
}

func TestDeliveryArgsEncoding(t *testing.T) {
	args := DeliveryArgs{Delivery: ingest.Delivery{
		Provider:  "github",
		EventType: "pull_request",
		ID:        "d-1",
		Payload:   []byte(`{"action":"opened"}`),
	}}
	require.Equal(t, JobKind, args.Kind())

	raw, err := json.Marshal(args)
	require.NoError(t, err)
	var decoded DeliveryArgs
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, args, decoded)
}

func TestInsertOpts(t *testing.T) {
	opts := insertOpts(internal.RiverConfig{Queue: "achievibit_deliveries", MaxAttempts: 7, Priority: 2})
	require.Equal(t, "achievibit_deliveries", opts.Queue)
	require.Equal(t, 7, opts.MaxAttempts)
	require.Equal(t, 2, opts.Priority)
	require.Equal(t, []string{"webhook"}, opts.Tags)
}

func TestConnectRequiresDSN(t *testing.T) {
	_, err := Connect(context.Background(), internal.RiverConfig{}, nil)
	require.Error(t, err)
}
