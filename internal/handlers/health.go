package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Pinger checks one backend.
type Pinger func(ctx context.Context) error

// Health pings every backend concurrently and reports 503 if any is down.
func Health(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		var mu sync.Mutex
		results := make(map[string]string, len(checks))
		healthy := true

		g, gctx := errgroup.WithContext(ctx)
		for name, ping := range checks {
			name, ping := name, ping
			g.Go(func() error {
				status := "ok"
				if err := ping(gctx); err != nil {
					status = err.Error()
				}
				mu.Lock()
				defer mu.Unlock()
				results[name] = status
				if status != "ok" {
					healthy = false
				}
				return nil
			})
		}
		g.Wait()

		code, status := http.StatusOK, "healthy"
		if !healthy {
			code, status = http.StatusServiceUnavailable, "degraded"
		}
		writeJSON(w, code, map[string]interface{}{
			"status":  status,
			"service": "broom-chat",
			"checks":  results,
		})
	}
}
