package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const readyCheckTimeout = 2 * time.Second

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

type readyReport struct {
	Status   string            `json:"status"`
	Failures map[string]string `json:"failures,omitempty"`
}

// NewBaseMuxWithReady returns a mux with /healthz (liveness) and /readyz.
// Readiness runs all checks concurrently and reports each failing dependency.
func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		failures := RunChecks(r.Context(), checks)

		report := readyReport{Status: "ok"}
		code := http.StatusOK
		if len(failures) > 0 {
			report.Status = "unavailable"
			report.Failures = failures
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	})
	return mux
}

// RunChecks executes every check with its own timeout and returns the failures
// keyed by check name.
func RunChecks(ctx context.Context, checks []ReadyCheck) map[string]string {
	var (
		mu       sync.Mutex
		failures = map[string]string{}
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, check := range checks {
		if check.Check == nil {
			continue
		}
		name := check.Name
		if name == "" {
			name = fmt.Sprintf("dependency-%d", i)
		}
		fn := check.Check
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, readyCheckTimeout)
			defer cancel()
			if err := fn(cctx); err != nil {
				mu.Lock()
				failures[name] = err.Error()
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if len(failures) == 0 {
		return nil
	}
	return failures
}
