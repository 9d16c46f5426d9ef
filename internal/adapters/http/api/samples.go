package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/okian/ridesafe/internal/adapters/source"
	service "github.com/okian/ridesafe/internal/app"
	"github.com/okian/ridesafe/internal/domain/model"
	"github.com/okian/ridesafe/internal/domain/types"
)

const maxSampleBody = 1 << 20

// SampleDependencies defines the ingest side of the service.
type SampleDependencies interface {
	// Enqueue submits a sample. duplicate is true for an already-seen id.
	Enqueue(ctx context.Context, raw model.RawSample) (duplicate bool, err error)
}

// SamplesHandler handles sample ingestion.
type SamplesHandler struct {
	deps SampleDependencies
}

// NewSamplesHandler creates a new samples handler.
func NewSamplesHandler(deps SampleDependencies) *SamplesHandler {
	return &SamplesHandler{deps: deps}
}

// HandlePostSamples handles POST /samples. The body is one sample object or
// an array of them. Malformed fields inside a sample are not rejected here;
// the normalizer skips samples it cannot use.
func (h *SamplesHandler) HandlePostSamples(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_samples"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSampleBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	samples, err := source.DecodeSamples(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if len(samples) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("empty body")))
		return
	}

	ack := types.Ack{Status: "accepted"}
	for _, s := range samples {
		dup, err := h.deps.Enqueue(r.Context(), s)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrBackpressure):
				writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
			case errors.Is(err, service.ErrNotStarted):
				writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
			default:
				writeError(w, http.StatusInternalServerError, "internal", Wrap(op, err))
			}
			return
		}
		if dup {
			ack.Duplicates++
			continue
		}
		ack.Accepted++
	}

	if ack.Accepted == 0 {
		ack.Status = "duplicate"
		writeJSON(w, http.StatusOK, ack)
		return
	}
	writeJSON(w, http.StatusAccepted, ack)
}
