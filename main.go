package main

import (
	"crypto/tls"
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/financeflow/backend/src/app"
	"github.com/financeflow/backend/src/config"
	"github.com/financeflow/backend/src/database"
	"github.com/financeflow/backend/src/handlers"
	"github.com/financeflow/backend/src/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

func proxyHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Forwarded-Proto") == "https" {
			r.URL.Scheme = "https"
			r.TLS = &tls.ConnectionState{}
		}
		next.ServeHTTP(w, r)
	})
}

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(allowed []string) func(http.Handler) http.Handler {
	allowedOrigins := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		allowedOrigins[strings.TrimRight(origin, "/")] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowedOrigins[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, DELETE")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Authorization, X-Requested-With")
				w.Header().Set("Vary", "Origin")
			}

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("FinanceFlow backend server starting...")

	if len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	database.RunMigrations()

	application, err := app.Build(config.Cfg, database.DB)
	if err != nil {
		logger.L.Error("Failed to initialize services", "error", err)
		os.Exit(1)
	}

	authHandler := handlers.NewAuthHandler(application.Auth)
	syncHandler := handlers.NewSyncHandler(application.Sync)
	integrationHandler := handlers.NewIntegrationHandler(application.Connect, config.Cfg.OAuthStateString)
	accountHandler := handlers.NewAccountHandler(application.Report)
	txHandler := handlers.NewTransactionHandler(application.Report)
	analyticsHandler := handlers.NewAnalyticsHandler(application.Report)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(handlers.RequestLogMiddleware)
	r.Use(proxyHeadersMiddleware)
	r.Use(enableCORS(config.Cfg.AllowedOrigins))
	r.Use(rateLimitMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "FinanceFlow Backend is running"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(authHandler.AuthMiddleware)

		r.Post("/sync", syncHandler.HandleSync)

		r.Get("/integrations", integrationHandler.HandleListIntegrations)
		r.Delete("/integrations/{id}", integrationHandler.HandleDeleteIntegration)
		r.Post("/integrations/plaid/link-token", integrationHandler.HandleCreatePlaidLinkToken)
		r.Post("/integrations/plaid/exchange", integrationHandler.HandleExchangePlaidToken)
		r.Get("/integrations/{provider}/authorize", integrationHandler.HandleAuthorize)
		r.Post("/integrations/{provider}/connect", integrationHandler.HandleConnect)

		r.Get("/accounts", accountHandler.HandleListAccounts)
		r.Get("/transactions", txHandler.HandleListTransactions)
		r.Get("/analytics/summary", analyticsHandler.HandleGetSummary)
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // a sync waits on every provider
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
