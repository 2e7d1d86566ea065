// Package httptransport is the thin HTTP layer. Handlers delegate to
// domain services and translate coded errors onto statuses; business
// rules stay out of this package.
package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"vidgate/internal/quota"
	dErrors "vidgate/pkg/domain-errors"
)

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`

	// Quota context, present only on quota_exceeded responses.
	QuotaUsed  *int64     `json:"quota_used,omitempty"`
	QuotaLimit *int64     `json:"quota_limit,omitempty"`
	ResetsAt   *time.Time `json:"resets_at,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError centralizes domain error translation to HTTP responses.
// Quota exhaustion carries its usage context so clients can render the
// budget without another round trip.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := errorBody{Error: string(code)}

	var de *dErrors.DomainError
	if errors.As(err, &de) {
		body.Description = de.Message
	}

	var exceeded *quota.ExceededError
	if errors.As(err, &exceeded) {
		body.QuotaUsed = &exceeded.Used
		body.QuotaLimit = &exceeded.Limit
		resetsAt := exceeded.ResetsAt
		body.ResetsAt = &resetsAt
	}

	writeJSON(w, dErrors.ToHTTPStatus(code), body)
}
