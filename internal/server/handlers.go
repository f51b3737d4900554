package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/badge"
)

const (
	// MaxBodySize caps JSON request bodies.
	MaxBodySize = 1 << 20

	// MaxProfileSize caps uploaded coverage profiles.
	MaxProfileSize = 10 << 20
)

// fail logs err with its kind and writes the error response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := badge.KindOf(err)
	status := statusFor(kind)

	log := s.logger.Warn
	if status >= http.StatusInternalServerError {
		log = s.logger.Error
	}
	log("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"kind", string(kind),
		"error", err,
		"request_id", RequestIDFrom(r.Context()),
	)

	writeError(w, err)
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, badge.Invalid("request body too large",
				badge.FieldError{Field: "body", Reason: fmt.Sprintf("must not exceed %d bytes", limit)})
		}
		return nil, badge.Invalid("failed to read request body", badge.FieldError{Field: "body", Reason: err.Error()})
	}
	return body, nil
}

// getBadge serves GET /v1/badges/{badgeName}
func (s *Server) getBadge(w http.ResponseWriter, r *http.Request) {
	b, err := s.badges.Fetch(r.Context(), r.PathValue("badgeName"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", b.ContentType)
	w.Header().Set("Cache-Control", "max-age="+strconv.Itoa(int(b.MaxAge.Seconds())))
	w.Header().Set("Content-Length", strconv.Itoa(len(b.Content)))
	w.WriteHeader(http.StatusOK)
	w.Write(b.Content)
}

// updateBadge serves PUT /v1/badges/{badgeName}
func (s *Server) updateBadge(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, MaxBodySize)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	req, err := badge.ParseRequest(body)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.badges.Update(r.Context(), r.PathValue("badgeName"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Location", res.Location)
	writeJSON(w, http.StatusOK, res)
}

// deleteBadge serves DELETE /v1/badges/{badgeName}
func (s *Server) deleteBadge(w http.ResponseWriter, r *http.Request) {
	if err := s.badges.Delete(r.Context(), r.PathValue("badgeName")); err != nil {
		s.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// coverageReport serves POST /v1/coverage-reports
func (s *Server) coverageReport(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, MaxBodySize)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	report, err := badge.ParseCoverageReport(body)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.badges.CoverageReport(r.Context(), report)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// coverageProfile serves POST /v1/coverage-profiles/{badgeName}?label=
// The body is a Go coverage profile or a zip archive of profiles.
func (s *Server) coverageProfile(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, MaxProfileSize)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.badges.UpdateFromProfile(r.Context(), r.PathValue("badgeName"), r.URL.Query().Get("label"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Location", res.Location)
	writeJSON(w, http.StatusOK, res)
}
