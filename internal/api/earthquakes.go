package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/quake-catalog-crawler/internal/quake"
)

const (
	sourceName = "DOST-PHIVOLCS"
	probeLimit = 3
)

type latestResponse struct {
	Success   bool           `json:"success"`
	Count     int            `json:"count"`
	Data      []quake.Record `json:"data"`
	Source    string         `json:"source"`
	ScrapedAt time.Time      `json:"scraped_at"`
}

type probeResponse struct {
	Status      string        `json:"status"`
	Message     string        `json:"message"`
	SampleCount int           `json:"sample_count"`
	SampleData  *quake.Record `json:"sample_data"`
	Source      string        `json:"source"`
}

// latest handles GET /api/v1/earthquakes/latest?limit=N.
func (s *Server) latest(w http.ResponseWriter, r *http.Request) {
	limit, err := s.parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := s.deps.Snapshot.Latest(r.Context(), limit)
	if err != nil {
		s.logger.Warn("latest earthquakes failed",
			zap.String("request_id", requestID(r.Context())),
			zap.Int("limit", limit),
			zap.Error(err),
		)
		writeError(w, statusFor(err), err.Error())
		return
	}
	if records == nil {
		records = []quake.Record{}
	}
	writeJSON(w, http.StatusOK, latestResponse{
		Success:   true,
		Count:     len(records),
		Data:      records,
		Source:    sourceName,
		ScrapedAt: s.deps.Clock.Now().UTC(),
	})
}

// probe handles GET /api/v1/earthquakes/test, a small end-to-end scrape check.
func (s *Server) probe(w http.ResponseWriter, r *http.Request) {
	records, err := s.deps.Snapshot.Latest(r.Context(), probeLimit)
	if err != nil {
		writeJSON(w, statusFor(err), probeResponse{
			Status:  "error",
			Message: err.Error(),
			Source:  sourceName,
		})
		return
	}
	resp := probeResponse{
		Status:      "success",
		Message:     "scraping test successful",
		SampleCount: len(records),
		Source:      sourceName,
	}
	if len(records) > 0 {
		resp.SampleData = &records[0]
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return s.cfg.DefaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("invalid limit")
	}
	if limit < 1 || limit > s.cfg.MaxLimit {
		return 0, fmt.Errorf("limit must be between 1 and %d", s.cfg.MaxLimit)
	}
	return limit, nil
}

// statusFor maps source failures onto gateway status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, quake.ErrNetwork):
		return http.StatusServiceUnavailable
	case errors.Is(err, quake.ErrSourceStatus), errors.Is(err, quake.ErrNoData):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
