package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/releasebot/internal/application"
	"github.com/ericfisherdev/releasebot/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// RepoResponse is the JSON representation of a tracked repository.
type RepoResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	LatestTag   string `json:"latest_tag,omitempty"`
	FirstSeenAt string `json:"first_seen_at,omitempty"`
	Subscribers int    `json:"subscribers"`
	CreatedAt   string `json:"created_at"`
}

// PollResultResponse is the JSON representation of a single repository poll.
type PollResultResponse struct {
	RepositoryID string  `json:"repository_id"`
	Repository   string  `json:"repository"`
	Outcome      string  `json:"outcome"`
	PreviousTag  string  `json:"previous_tag,omitempty"`
	Tag          string  `json:"tag,omitempty"`
	Notified     int     `json:"notified"`
	FailedChats  []int64 `json:"failed_chats"`
	Error        string  `json:"error,omitempty"`
}

// StatusResponse acknowledges an asynchronous request.
type StatusResponse struct {
	Status string `json:"status"`
}

// HealthResponse is the JSON response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

func toRepoResponse(v application.TrackedView) RepoResponse {
	resp := RepoResponse{
		ID:          v.Repository.ID,
		Name:        v.Repository.Name,
		URL:         v.Repository.URL.String(),
		LatestTag:   v.LatestTag,
		Subscribers: v.Subscribers,
		CreatedAt:   formatTime(v.Repository.CreatedAt),
	}
	if !v.FirstSeenAt.IsZero() {
		resp.FirstSeenAt = formatTime(v.FirstSeenAt)
	}
	return resp
}

func toPollResultResponse(r model.RepoPollResult) PollResultResponse {
	resp := PollResultResponse{
		RepositoryID: r.Repository.ID,
		Repository:   r.Repository.URL.String(),
		Outcome:      string(r.Outcome),
		PreviousTag:  r.PreviousTag,
		Tag:          r.Tag,
		Notified:     r.Notified,
		FailedChats:  r.FailedChats,
	}
	if resp.FailedChats == nil {
		resp.FailedChats = []int64{}
	}
	if r.Err != nil {
		resp.Error = r.Err.Error()
	}
	return resp
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
