package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mobilifiver/feedwise/pkg/anthropic"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the catalog HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      newRouter(env),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

// newRouter builds the API surface: health, one-shot queries, chat turns with
// server-held history, and a webhook that triggers an import.
func newRouter(env *app) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	sessions := newSessionStore()

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		status := env.checker.Check(req.Context())
		code := http.StatusOK
		if !status.Healthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	})

	r.Post("/api/query", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Query == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
			return
		}
		writeJSON(w, http.StatusOK, env.executor.Execute(req.Context(), body.Query))
	})

	r.Post("/api/chat", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			SessionID string `json:"session_id"`
			Message   string `json:"message"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Message == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
			return
		}
		if body.SessionID == "" {
			body.SessionID = uuid.NewString()
		}

		history := sessions.history(body.SessionID)
		answer, err := env.assistant.Answer(req.Context(), body.Message, history)
		if err != nil {
			zap.L().Error("chat turn failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		sessions.append(body.SessionID, body.Message, answer)

		writeJSON(w, http.StatusOK, map[string]string{
			"session_id": body.SessionID,
			"answer":     answer,
		})
	})

	r.Post("/webhook/import", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			URL     string `json:"url"`
			Version string `json:"version"`
		}
		// body is optional, config feed.url is the fallback
		_ = json.NewDecoder(req.Body).Decode(&body)
		source := body.URL
		if source == "" {
			source = cfg.Feed.URL
		}
		if source == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
			return
		}
		version := body.Version
		if version == "" {
			version = fmt.Sprintf("%s-%s", cfg.Feed.VersionPrefix, time.Now().UTC().Format("20060102-150405"))
		}

		// Run the import asynchronously, detached from the request context.
		go func() {
			run, err := env.importer.Run(context.Background(), source, version)
			if err != nil {
				zap.L().Error("webhook import failed",
					zap.String("source", source),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("webhook import complete",
				zap.Int64("run_id", run.ID),
				zap.Int("total", run.Total),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":  "accepted",
			"source":  source,
			"version": version,
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// sessionStore holds per-session chat history in memory. History is capped
// the same way the CLI chat caps it.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string][]anthropic.Message
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string][]anthropic.Message)}
}

func (s *sessionStore) history(id string) []anthropic.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.sessions[id]
	out := make([]anthropic.Message, len(h))
	copy(out, h)
	return out
}

func (s *sessionStore) append(id, userMsg, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := append(s.sessions[id],
		anthropic.Message{Role: "user", Content: userMsg},
		anthropic.Message{Role: "assistant", Content: answer},
	)
	if len(h) > maxHistoryTurns*2 {
		h = h[len(h)-maxHistoryTurns*2:]
	}
	s.sessions[id] = h
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
