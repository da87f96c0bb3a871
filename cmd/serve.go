package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-screen/internal/cache"
	"github.com/sells-group/parcel-screen/internal/geo"
	"github.com/sells-group/parcel-screen/internal/proximity"
	"github.com/sells-group/parcel-screen/internal/report"
	"github.com/sells-group/parcel-screen/internal/risk"
	"github.com/sells-group/parcel-screen/internal/screen"
)

// maxRequestBytes bounds POST /v1/screen bodies.
const maxRequestBytes = 32 << 20

var servePort int

// runLister lists recorded screening runs.
type runLister interface {
	ListRuns(ctx context.Context, limit int) ([]cache.RunRecord, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the screening HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initScreen(ctx, envOptions{Mode: "serve"})
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(env.Service, env.Precision, env.Runs, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// screenRequest is the POST /v1/screen body.
type screenRequest struct {
	Boundary   []geo.GeoPoint    `json:"boundary"`
	Reference  *geo.GeoPoint     `json:"reference"`
	Candidates []candidateInput  `json:"candidates"`
	Ladder     *risk.LadderFile  `json:"ladder"`
	Format     string            `json:"format"`
	Precision  *precisionRequest `json:"precision"`
}

// candidateInput keeps absent coordinates distinguishable from zero.
type candidateInput struct {
	ID         string            `json:"id"`
	Lat        *float64          `json:"lat"`
	Lng        *float64          `json:"lng"`
	Attributes map[string]string `json:"attributes"`
}

type precisionRequest struct {
	Decimals *int   `json:"decimals"`
	Mode     string `json:"mode"`
}

// buildRouter wires the API routes. runs may be nil, in which case the run
// history route is not registered. CORS is enabled only for corsOrigins.
func buildRouter(svc *screen.Service, pr geo.Precision, runs runLister, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			ExposedHeaders: []string{"X-Run-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/ladder", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, svc.Ladder())
		})

		r.Post("/screen", func(w http.ResponseWriter, req *http.Request) {
			handleScreen(w, req, svc, pr)
		})

		if runs != nil {
			r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
				limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
				list, err := runs.ListRuns(req.Context(), limit)
				if err != nil {
					zap.L().Error("list runs failed", zap.Error(err))
					writeError(w, http.StatusInternalServerError, "failed to list runs")
					return
				}
				if list == nil {
					list = []cache.RunRecord{}
				}
				writeJSON(w, http.StatusOK, list)
			})
		}
	})

	return r
}

func handleScreen(w http.ResponseWriter, req *http.Request, svc *screen.Service, pr geo.Precision) {
	var body screenRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRequestBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	formatName := body.Format
	if q := req.URL.Query().Get("format"); q != "" {
		formatName = q
	}
	if formatName == "" {
		formatName = string(report.FormatJSON)
	}
	format, err := report.ParseFormat(formatName)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	in, err := body.input()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Precision != nil {
		if pr, err = body.Precision.apply(pr); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	doc, err := svc.Screen(req.Context(), in)
	if err != nil {
		zap.L().Warn("screen request failed", zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("X-Run-ID", doc.RunID)
	w.WriteHeader(http.StatusOK)
	if err := report.Write(w, format, doc, pr); err != nil {
		zap.L().Error("write screen response", zap.String("run_id", doc.RunID), zap.Error(err))
	}
}

func (b screenRequest) input() (proximity.Input, error) {
	in := proximity.Input{
		Boundary:  geo.Polygon(b.Boundary),
		Reference: geo.MissingPoint(),
	}
	if b.Reference != nil {
		in.Reference = *b.Reference
	}
	if len(b.Boundary) == 0 && b.Reference == nil {
		return in, eris.New("boundary or reference is required")
	}
	if b.Ladder != nil {
		l, err := risk.NewLadder(b.Ladder.Tiers...)
		if err != nil {
			return in, err
		}
		in.Ladder = l
	}

	in.Candidates = make([]proximity.CandidateSite, 0, len(b.Candidates))
	for i, c := range b.Candidates {
		site := proximity.CandidateSite{
			ID:         c.ID,
			Point:      geo.MissingPoint(),
			Attributes: c.Attributes,
		}
		if site.ID == "" {
			site.ID = "candidate-" + strconv.Itoa(i+1)
		}
		if c.Lat != nil && c.Lng != nil {
			site.Point = geo.GeoPoint{Lat: *c.Lat, Lng: *c.Lng}
		}
		in.Candidates = append(in.Candidates, site)
	}
	return in, nil
}

func (p precisionRequest) apply(base geo.Precision) (geo.Precision, error) {
	out := base
	if p.Mode != "" {
		mode, err := geo.ParseRoundMode(p.Mode)
		if err != nil {
			return base, err
		}
		out.Mode = mode
	}
	if p.Decimals != nil {
		if *p.Decimals < 0 || *p.Decimals > 12 {
			return base, eris.Errorf("precision.decimals %d out of range", *p.Decimals)
		}
		out.Decimals = uint8(*p.Decimals)
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
