package app

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"examgate/internal/app/apiresp"
	"examgate/internal/app/observability"
	"examgate/internal/attempt"
	"examgate/internal/auth"
	"examgate/internal/catalog"
	"examgate/internal/report"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(cfg Config, db *sql.DB, logger *slog.Logger) (http.Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewCollector(db, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	verifier, err := auth.NewVerifier(cfg.AuthHMACSecret)
	if err != nil {
		return nil, fmt.Errorf("auth verifier: %w", err)
	}
	authHandler := auth.NewHandler(verifier)

	sqlCatalog := catalog.NewSQLCatalog(db)
	tests, err := catalog.NewCachedProvider(sqlCatalog, int64(cfg.CatalogCacheSize), cfg.CatalogCacheTTL())
	if err != nil {
		return nil, err
	}
	catalogHandler := catalog.NewHandler(tests, sqlCatalog, tests)

	store := attempt.NewSQLStore(db)
	attemptSvc := attempt.NewService(store, tests, attempt.ServiceConfig{
		Logger:          logger,
		Metrics:         metrics,
		MaxAdmitRetries: cfg.MaxAdmitRetries,
	})
	attemptHandler := attempt.NewHandler(attemptSvc)

	reportHandler := report.NewHandler(report.NewService(store, tests))

	admitLimiter := NewRateLimiter(cfg.AdmitRateLimitPerMin, time.Minute)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				logger.ErrorContext(r.Context(), "health check ping", slog.Any("err", err))
				apiresp.WriteError(w, r, http.StatusServiceUnavailable, "database unavailable")
				return
			}
		}
		apiresp.WriteOK(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.MetricsHandler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)

			secure.Get("/tests/{testID}/status", attemptHandler.Status)
			secure.Get("/tests/{testID}/attempts", attemptHandler.History)
			secure.With(RateLimitMiddleware(admitLimiter)).Post("/tests/{testID}/attempts", attemptHandler.Start)
			secure.Get("/attempts/{attemptID}/result", attemptHandler.Result)
			secure.Post("/attempts/{attemptID}/submit", attemptHandler.Submit)

			secure.Group(func(grader chi.Router) {
				grader.Use(authHandler.RequireRoles(auth.RoleTeacher, auth.RoleGrader, auth.RoleAdmin))
				grader.Post("/attempts/{attemptID}/grade", attemptHandler.Grade)
			})

			secure.Group(func(staff chi.Router) {
				staff.Use(authHandler.RequireRoles(auth.RoleTeacher, auth.RoleAdmin))
				staff.Get("/tests/{testID}", catalogHandler.Get)
				staff.Put("/tests/{testID}", catalogHandler.Upsert)
				staff.Get("/tests/{testID}/cohort-scores", reportHandler.CohortScores)
				staff.Post("/tests/{testID}/release", attemptHandler.BulkRelease)
				staff.Post("/tests/{testID}/hide", attemptHandler.BulkHide)
				staff.Post("/attempts/{attemptID}/release", attemptHandler.Release)
				staff.Post("/attempts/{attemptID}/hide", attemptHandler.Hide)
				staff.Get("/attempts/{attemptID}/events", attemptHandler.ListEvents)
			})
		})
	})

	return r, nil
}
