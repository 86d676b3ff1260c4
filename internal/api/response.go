package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kraklabs/repoanalyzer/internal/apperror"
)

// errorBody is the wire envelope for every non-2xx response, per the
// external interfaces design's {error, message, statusCode, details?,
// timestamp} shape.
type errorBody struct {
	Error      string         `json:"error"`
	Message    string         `json:"message"`
	StatusCode int            `json:"statusCode"`
	Details    map[string]any `json:"details,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps err into the wire envelope, classifying plain errors as
// Internal per apperror.Wrap, and redacting the message for Internal errors
// when env is "production" (the taxonomy's "message redacted in production"
// rule).
func writeError(w http.ResponseWriter, err error, env string) {
	ae := apperror.Wrap(err)
	status := ae.HTTPStatus()

	message := ae.Message
	if ae.Kind == apperror.KindInternal && env == "production" {
		message = "an internal error occurred"
	}

	writeJSON(w, status, errorBody{
		Error:      string(ae.Kind),
		Message:    message,
		StatusCode: status,
		Details:    ae.Details,
		Timestamp:  time.Now().UTC(),
	})
}
