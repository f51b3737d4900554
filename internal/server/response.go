package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/badge"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    badge.Kind         `json:"kind"`
	Message string             `json:"message"`
	Fields  []badge.FieldError `json:"fields,omitempty"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind badge.Kind) int {
	switch kind {
	case badge.KindValidation:
		return http.StatusBadRequest
	case badge.KindAuth:
		return http.StatusUnauthorized
	case badge.KindNotFound:
		return http.StatusNotFound
	case badge.KindUpstreamRender:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a JSON error. Only the kind, message and field
// errors are exposed; wrapped causes stay in the logs.
func writeError(w http.ResponseWriter, err error) {
	detail := errorDetail{Kind: badge.KindInternal, Message: "internal server error"}

	var berr *badge.Error
	if errors.As(err, &berr) {
		detail.Kind = berr.Kind
		detail.Message = berr.Message
		detail.Fields = berr.Fields
	}

	writeJSON(w, statusFor(detail.Kind), errorBody{Error: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":{"kind":"internal","message":"failed to encode response"}}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
