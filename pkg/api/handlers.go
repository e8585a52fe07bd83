package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"achievibit/pkg/model"
	"achievibit/pkg/storage"
)

// Reader is the read side of storage.EntityStore.
type Reader interface {
	FindPullRequest(ctx context.Context, prid string) (*model.PullRequest, error)
	FindUser(ctx context.Context, username string) (*model.User, error)
	FindRepository(ctx context.Context, fullname string) (*model.Repository, error)
	ListRepositories(ctx context.Context) ([]model.Repository, error)
	ListPullRequests(ctx context.Context, repository string) ([]model.PullRequest, error)
}

// PullRequestsHandler returns one pull request by prid, or the pull
// requests of a repository.
type PullRequestsHandler struct {
	Store  Reader
	Logger *log.Logger
}

func (h *PullRequestsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r, h.Store) {
		return
	}
	prid := strings.TrimSpace(r.URL.Query().Get("prid"))
	repository := strings.TrimSpace(r.URL.Query().Get("repository"))
	switch {
	case prid != "":
		pr, err := h.Store.FindPullRequest(r.Context(), prid)
		if err != nil {
			writeError(w, h.Logger, "find pull request", err)
			return
		}
		writeJSON(w, pr)
	case repository != "":
		if _, err := h.Store.FindRepository(r.Context(), repository); err != nil {
			writeError(w, h.Logger, "find repository", err)
			return
		}
		prs, err := h.Store.ListPullRequests(r.Context(), repository)
		if err != nil {
			writeError(w, h.Logger, "list pull requests", err)
			return
		}
		writeJSON(w, prs)
	default:
		http.Error(w, "missing prid or repository", http.StatusBadRequest)
	}
}

// RepositoriesHandler lists every known repository.
type RepositoriesHandler struct {
	Store  Reader
	Logger *log.Logger
}

func (h *RepositoriesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r, h.Store) {
		return
	}
	repos, err := h.Store.ListRepositories(r.Context())
	if err != nil {
		writeError(w, h.Logger, "list repositories", err)
		return
	}
	writeJSON(w, repos)
}

// UsersHandler serves /api/users/{username}.
type UsersHandler struct {
	Store  Reader
	Logger *log.Logger
}

func (h *UsersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r, h.Store) {
		return
	}
	username := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/users/"), "/")
	if username == "" || strings.Contains(username, "/") {
		http.Error(w, "missing username", http.StatusBadRequest)
		return
	}
	user, err := h.Store.FindUser(r.Context(), username)
	if err != nil {
		writeError(w, h.Logger, "find user", err)
		return
	}
	writeJSON(w, user)
}

// Register mounts the read API on mux.
func Register(mux *http.ServeMux, store Reader, logger *log.Logger) {
	mux.Handle("/api/pull-requests", &PullRequestsHandler{Store: store, Logger: logger})
	mux.Handle("/api/repositories", &RepositoriesHandler{Store: store, Logger: logger})
	mux.Handle("/api/users/", &UsersHandler{Store: store, Logger: logger})
}

func allowRead(w http.ResponseWriter, r *http.Request, store Reader) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if store == nil {
		http.Error(w, "storage not configured", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, logger *log.Logger, op string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	http.Error(w, op+" failed", http.StatusInternalServerError)
	if logger != nil {
		logger.Printf("%s failed: %v", op, err)
	}
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
