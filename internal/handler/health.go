package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/cradoe/fundsrail/internal/errHandler"
	"github.com/cradoe/fundsrail/internal/response"
	"github.com/cradoe/fundsrail/internal/version"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

type healthCheckHandler struct {
	err    *errHandler.ErrorRepository
	checks map[string]Check
}

func NewHealthCheckHandler(err *errHandler.ErrorRepository, checks map[string]Check) *healthCheckHandler {
	return &healthCheckHandler{
		err:    err,
		checks: checks,
	}
}

func (h *healthCheckHandler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := make(map[string]string, len(h.checks))
	healthy := true

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			components[name] = "unavailable"
			healthy = false
			continue
		}
		components[name] = "ok"
	}

	data := map[string]any{
		"version":    version.Get(),
		"components": components,
	}

	var err error
	if healthy {
		err = response.JSONOkResponse(w, data, "Up and grateful", nil)
	} else {
		err = response.JSONErrorResponse(w, data, "Some dependencies are unavailable", http.StatusServiceUnavailable, nil)
	}
	if err != nil {
		h.err.ServerError(w, r, err)
	}
}
