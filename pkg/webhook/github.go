package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"achievibit/internal"
	"achievibit/pkg/event"
	"achievibit/pkg/ingest"
	ghprovider "achievibit/pkg/providers/github"

	"github.com/go-playground/webhooks/v6/github"
	"github.com/google/uuid"
)

// Pipeline is the part of ingest.Pipeline the handler drives.
type Pipeline interface {
	Plan(d ingest.Delivery) (ingest.Plan, error)
	Process(ctx context.Context, d ingest.Delivery) (ingest.Result, error)
}

// Enqueuer hands a delivery to the background queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, d ingest.Delivery) error
}

// GitHubHandler handles incoming webhooks from GitHub.
type GitHubHandler struct {
	hook         *github.Webhook
	fallbackHook *github.Webhook
	secret       string
	pipeline     Pipeline
	enqueuer     Enqueuer
	logger       *log.Logger
	maxBody      int64
	debugEvents  bool
}

// Events outside this list are answered with 202 and dropped.
var githubEvents = []github.Event{
	github.PingEvent,
	github.RepositoryEvent,
	github.PullRequestEvent,
	github.PullRequestReviewEvent,
	github.PullRequestReviewCommentEvent,
}

// NewGitHubHandler creates a new GitHubHandler. With a nil enqueuer every
// delivery is applied before the response is written; otherwise deliveries
// are validated, queued and answered with 202.
func NewGitHubHandler(secret string, pipeline Pipeline, enqueuer Enqueuer, logger *log.Logger, maxBody int64, debugEvents bool) (*GitHubHandler, error) {
	if pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	hook, err := github.New(github.Options.Secret(secret))
	if err != nil {
		return nil, err
	}
	fallbackHook, err := github.New()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = internal.NewLogger("webhook")
	}
	return &GitHubHandler{
		hook:         hook,
		fallbackHook: fallbackHook,
		secret:       secret,
		pipeline:     pipeline,
		enqueuer:     enqueuer,
		logger:       logger,
		maxBody:      maxBody,
		debugEvents:  debugEvents,
	}, nil
}

// ServeHTTP handles an incoming HTTP request.
func (h *GitHubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	internal.IncRequest(ghprovider.Provider)
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	reqID := requestID(r)
	w.Header().Set("X-Request-Id", reqID)
	logger := internal.WithRequestID(h.logger, reqID)
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(rawBody))

	eventName := r.Header.Get("X-GitHub-Event")
	if h.debugEvents {
		logDebugEvent(logger, ghprovider.Provider, eventName, rawBody)
	}

	_, err = h.hook.Parse(r, githubEvents...)
	if err != nil {
		if errors.Is(err, github.ErrMissingHubSignatureHeader) && h.secret != "" {
			sha1Header := r.Header.Get("X-Hub-Signature")
			if sha1Header != "" && verifyGitHubSHA1(h.secret, rawBody, sha1Header) {
				logger.Printf("github parse warning: %v; accepted sha1 signature", err)
				r.Body = io.NopCloser(bytes.NewReader(rawBody))
				_, err = h.fallbackHook.Parse(r, githubEvents...)
			}
		}
		if errors.Is(err, github.ErrEventNotFound) {
			internal.IncIgnored(eventName)
			logger.Printf("github event ignored event=%s", eventName)
			w.WriteHeader(http.StatusAccepted)
			return
		}
		if err != nil {
			internal.IncParseError(ghprovider.Provider)
			logger.Printf("github parse failed: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	delivery := ingest.Delivery{
		Provider:  ghprovider.Provider,
		EventType: eventName,
		ID:        r.Header.Get("X-GitHub-Delivery"),
		RequestID: reqID,
		Payload:   rawBody,
	}
	if h.enqueuer != nil {
		w.WriteHeader(h.enqueue(r.Context(), logger, delivery))
		return
	}

	_, err = h.pipeline.Process(r.Context(), delivery)
	w.WriteHeader(statusFor(err))
}

// enqueue plans the delivery first so malformed and ignored deliveries are
// answered the same way in both modes.
func (h *GitHubHandler) enqueue(ctx context.Context, logger *log.Logger, d ingest.Delivery) int {
	if _, err := h.pipeline.Plan(d); err != nil {
		logger.Printf("delivery not queued event=%s: %v", d.EventType, err)
		return statusFor(err)
	}
	if err := h.enqueuer.Enqueue(ctx, d); err != nil {
		logger.Printf("enqueue failed event=%s: %v", d.EventType, err)
		return http.StatusInternalServerError
	}
	logger.Printf("delivery queued event=%s delivery=%s", d.EventType, d.ID)
	return http.StatusAccepted
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, event.ErrIgnored):
		return http.StatusAccepted
	case errors.Is(err, event.ErrMalformedPayload):
		return http.StatusBadRequest
	case errors.Is(err, event.ErrNotImplemented):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func requestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Request-Id")); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.Header.Get("X-GitHub-Delivery")); id != "" {
		return id
	}
	return uuid.NewString()
}

const debugBodyLimit = 2048

func logDebugEvent(logger *log.Logger, provider, eventName string, body []byte) {
	if len(body) > debugBodyLimit {
		logger.Printf("debug event provider=%s name=%s body=%s... (%d bytes)", provider, eventName, body[:debugBodyLimit], len(body))
		return
	}
	logger.Printf("debug event provider=%s name=%s body=%s", provider, eventName, body)
}

func verifyGitHubSHA1(secret string, body []byte, signature string) bool {
	if secret == "" || len(body) == 0 || signature == "" {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha1=")
	mac := hmac.New(sha1.New, []byte(secret))
	_, _ = mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}
