package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/medcode-cli/internal/knowledge"
	"github.com/sells-group/medcode-cli/internal/model"
	"github.com/sells-group/medcode-cli/internal/pipeline"
	"github.com/sells-group/medcode-cli/internal/store"
)

var servePort int

// maxScoreBody caps POST /score request bodies.
const maxScoreBody = 1 << 20

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the code cache and performance history over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		cache := knowledge.New(st)
		if err := cache.Load(ctx); err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(cache, st),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// scoreRequest is the POST /score body: submitted answers and the key, both
// keyed by question number.
type scoreRequest struct {
	Answers map[int]string `json:"answers"`
	Key     map[int]string `json:"key"`
}

// buildRouter wires the read-only API. The cache serves lookups only; it is
// never asked to fetch.
func buildRouter(cache *knowledge.Cache, history store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":       "ok",
			"cached_codes": cache.Snapshot().Len(),
		})
	})

	r.Get("/codes/{family}/{code}", func(w http.ResponseWriter, req *http.Request) {
		family, err := parseFamilyArg(chi.URLParam(req, "family"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		code := strings.ToUpper(chi.URLParam(req, "code"))
		e, ok := cache.Lookup(family, code)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("%s %s is not cached", family, code))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"family": family, "entry": e})
	})

	r.Get("/history", func(w http.ResponseWriter, req *http.Request) {
		limit := 20
		if v := req.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			limit = n
		}
		logs, err := history.ListPerformanceLogs(req.Context(), limit)
		if err != nil {
			zap.L().Error("serve: list history failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "history unavailable")
			return
		}
		if logs == nil {
			logs = []model.PerformanceLog{}
		}
		writeJSON(w, http.StatusOK, logs)
	})

	r.Post("/score", func(w http.ResponseWriter, req *http.Request) {
		var body scoreRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxScoreBody)).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(body.Key) == 0 {
			writeError(w, http.StatusBadRequest, "key is required")
			return
		}
		key := make(model.AnswerKey, len(body.Key))
		for n, letter := range body.Key {
			letter = strings.ToUpper(strings.TrimSpace(letter))
			if !model.IsValidChoice(letter) {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("key answer for question %d must be A-D", n))
				return
			}
			key[n] = letter
		}
		answers := make(map[int]string, len(body.Answers))
		for n, letter := range body.Answers {
			answers[n] = strings.ToUpper(strings.TrimSpace(letter))
		}

		report := pipeline.Score(pipeline.Submissions(answers), key)
		writeJSON(w, http.StatusOK, report)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
