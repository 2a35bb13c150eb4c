// Copyright 2026 The Marketbase Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// dashd is the dashboard session agent. It owns the bootstrap state
// machine on behalf of a local dashboard shell: it signs in against the
// Marketbase API, resolves the profile and tenant, and exposes the
// resulting snapshot over a loopback HTTP endpoint.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marketbase/marketbase/internal/audit"
	"github.com/marketbase/marketbase/internal/bootstrap"
	"github.com/marketbase/marketbase/internal/config"
	"github.com/marketbase/marketbase/internal/directory"
	"github.com/marketbase/marketbase/internal/observability/logger"
	"github.com/marketbase/marketbase/internal/observability/metrics"
	"github.com/marketbase/marketbase/internal/provider"
)

func main() {
	cfg := config.LoadAgent()

	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting marketbase session agent")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}

	api := provider.NewAPI(cfg.APIBaseURL)
	defer api.Close()
	dir := directory.NewClient(cfg.APIBaseURL, api.AccessToken)

	b := bootstrap.New(api, dir, audit.NewSlogLogger(), bootstrap.Config{
		FetchTimeout:     cfg.Bootstrap.FetchTimeout,
		MaxFetchAttempts: cfg.Bootstrap.MaxFetchAttempts,
		RetryBaseDelay:   cfg.Bootstrap.RetryBaseDelay,
		OverallTimeout:   cfg.Bootstrap.OverallTimeout,
	})
	if meter != nil {
		if err := b.RegisterMetrics(meter.GetMeter()); err != nil {
			slog.Error("failed to register bootstrap metrics", logger.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run(ctx)
	}()

	// Optional non-interactive sign-in for kiosk and dev setups.
	if email := os.Getenv("MB_EMAIL"); email != "" {
		if err := b.SignIn(ctx, email, os.Getenv("MB_PASSWORD")); err != nil {
			slog.Error("initial sign-in failed", logger.Email(email), logger.Error(err))
		}
	}

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      newAgentRouter(b),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("agent listening", logger.Component("dashd"), logger.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("agent server error", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down session agent")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("agent shutdown error", logger.Error(err))
	}
	<-done
	slog.Info("session agent stopped")
}

// statePayload is the snapshot shape served to the dashboard shell.
type statePayload struct {
	Status  string                 `json:"status"`
	User    *userPayload           `json:"user,omitempty"`
	Profile *directory.UserProfile `json:"profile,omitempty"`
	Tenant  *directory.Tenant      `json:"tenant,omitempty"`
	Error   *errorPayload          `json:"error,omitempty"`
}

type userPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type errorPayload struct {
	Class   string `json:"class"`
	Message string `json:"message"`
}

func snapshot(st bootstrap.State) statePayload {
	p := statePayload{Status: string(st.Status)}
	if st.User != nil {
		p.User = &userPayload{ID: st.User.UserID, Email: st.User.Email}
	}
	p.Profile = st.Profile
	p.Tenant = st.Tenant
	if st.Err != nil {
		p.Error = &errorPayload{Class: string(st.Err.Class), Message: st.Err.Message}
	}
	return p
}

func newAgentRouter(b *bootstrap.Bootstrapper) *chi.Mux {
	r := chi.NewRouter()

	r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, snapshot(b.State()))
	})

	// Long-poll style stream of state transitions, one JSON object per line.
	r.Get("/watch", func(w http.ResponseWriter, r *http.Request) {
		updates, cancel := b.Subscribe()
		defer cancel()

		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher, _ := w.(http.Flusher)
		enc := json.NewEncoder(w)

		_ = enc.Encode(snapshot(b.State()))
		if flusher != nil {
			flusher.Flush()
		}
		for {
			select {
			case <-r.Context().Done():
				return
			case st, ok := <-updates:
				if !ok {
					return
				}
				_ = enc.Encode(snapshot(st))
				if flusher != nil {
					flusher.Flush()
				}
			}
		}
	})

	r.Post("/signin", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if err := b.SignIn(r.Context(), req.Email, req.Password); err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, snapshot(b.State()))
	})

	r.Post("/signup", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email       string `json:"email"`
			Password    string `json:"password"`
			DisplayName string `json:"display_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		result, err := b.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id":              result.UserID,
			"confirmation_pending": result.ConfirmationPending,
		})
	})

	r.Post("/signout", func(w http.ResponseWriter, r *http.Request) {
		if err := b.SignOut(r.Context()); err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, snapshot(b.State()))
	})

	r.Post("/clear-error", func(w http.ResponseWriter, r *http.Request) {
		b.ClearError()
		writeJSON(w, http.StatusOK, snapshot(b.State()))
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
