// Package httpx holds the JSON envelope helpers shared by the HTTP handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tasks-go/pkg/apperr"
)

const maxBodyBytes = 1 << 20

// Envelope is the failure body: {"success": false, "message": "..."}.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Fail renders err with the status of its apperr code.
func Fail(w http.ResponseWriter, logger *zap.SugaredLogger, err error) {
	FailStatus(w, logger, apperr.CodeOf(err).HTTPStatus(), err)
}

// FailStatus renders err with an explicit status. Internal errors are logged
// and replaced by a generic message.
func FailStatus(w http.ResponseWriter, logger *zap.SugaredLogger, status int, err error) {
	if apperr.CodeOf(err) == apperr.CodeInternal {
		logger.Errorw("request failed", "err", err)
	}
	WriteJSON(w, status, Envelope{Success: false, Message: apperr.PublicMessage(err)})
}

// Decode reads a JSON body into dst. Malformed, oversized or trailing-data bodies are
// validation errors.
func Decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is empty")
		}
		return apperr.Wrap(apperr.CodeValidation, "invalid request body", err)
	}
	// exactly one JSON value per body
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return apperr.Wrap(apperr.CodeValidation, "invalid request body", err)
	}
	return nil
}
