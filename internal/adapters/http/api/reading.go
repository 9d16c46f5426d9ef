package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/ridesafe/internal/adapters/export"
	"github.com/okian/ridesafe/internal/domain/model"
)

// DefaultMaxHistoryLimit caps /history when no limit is configured.
const DefaultMaxHistoryLimit = 1000

// ReadingDependencies exposes the current reading and the history buffer.
type ReadingDependencies interface {
	CurrentReading() (model.Reading, bool)
	History(ctx context.Context) []model.Reading
	Recent(ctx context.Context, k int, reversed bool) ([]model.Reading, error)
}

// ReadingHandler serves the current reading and history exports.
type ReadingHandler struct {
	deps     ReadingDependencies
	maxLimit int
}

// NewReadingHandler creates a reading handler. A non-positive maxLimit
// falls back to DefaultMaxHistoryLimit.
func NewReadingHandler(deps ReadingDependencies, maxLimit int) *ReadingHandler {
	if maxLimit <= 0 {
		maxLimit = DefaultMaxHistoryLimit
	}
	return &ReadingHandler{deps: deps, maxLimit: maxLimit}
}

// HandleGetReading handles GET /reading.
func (h *ReadingHandler) HandleGetReading(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	reading, ok := h.deps.CurrentReading()
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", NewKind("api.get_reading", ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

// HandleGetHistory handles GET /history?format=json|csv&limit=N&order=asc|desc.
// Without a limit the whole buffer is returned oldest first.
func (h *ReadingHandler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_history"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	format := strings.ToLower(q.Get("format"))
	if format == "" {
		format = export.FormatJSON
	}
	if format != export.FormatJSON && format != export.FormatCSV {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("format must be json or csv")))
		return
	}

	reversed := false
	switch strings.ToLower(q.Get("order")) {
	case "", "asc":
	case "desc":
		reversed = true
	default:
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("order must be asc or desc")))
		return
	}

	limit := h.maxLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("limit must be a positive integer")))
			return
		}
		limit = min(n, h.maxLimit)
	}

	readings, err := h.deps.Recent(r.Context(), limit, reversed)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, readings); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", Wrap(op, err))
		return
	}
	w.Header().Set("Content-Type", export.ContentType(format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
