package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"
)

// CheckTimeout bounds each dependency check.
const CheckTimeout = 2 * time.Second

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

// Report is the /readyz body. Checks maps dependency name to "ok" or the
// failure message.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (r Report) OK() bool { return r.Status == "ok" }

// NewBaseMuxWithReady registers /healthz and /readyz. Nil checks are skipped
// so optional dependencies can be passed unconditionally.
func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		report := RunChecks(r.Context(), checks...)
		status := http.StatusOK
		if !report.OK() {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	})
	return mux
}

// RunChecks runs every check concurrently, each under CheckTimeout.
func RunChecks(ctx context.Context, checks ...ReadyCheck) Report {
	report := Report{Status: "ok", Checks: map[string]string{}}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, check := range checks {
		if check.Check == nil {
			continue
		}
		name := check.Name
		if name == "" {
			name = "dependency"
		}
		wg.Add(1)
		go func(name string, fn func(context.Context) error) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, CheckTimeout)
			err := fn(checkCtx)
			cancel()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Status = "unavailable"
				report.Checks[name] = err.Error()
				return
			}
			report.Checks[name] = "ok"
		}(name, check.Check)
	}
	wg.Wait()
	return report
}

// CheckAll folds checks into a single probe for callers such as the gRPC
// health watcher. Failures are joined in name order.
func CheckAll(checks ...ReadyCheck) func(context.Context) error {
	return func(ctx context.Context) error {
		report := RunChecks(ctx, checks...)
		if report.OK() {
			return nil
		}
		var names []string
		for name, msg := range report.Checks {
			if msg != "ok" {
				names = append(names, name)
			}
		}
		slices.Sort(names)
		errs := make([]error, 0, len(names))
		for _, name := range names {
			errs = append(errs, fmt.Errorf("%s: %s", name, report.Checks[name]))
		}
		return errors.Join(errs...)
	}
}
