package rest

import (
	"crypto/rsa"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/rs/cors"

	"github.com/frahmantamala/coaching-payments/internal/payment"
	"github.com/frahmantamala/coaching-payments/internal/transport/middleware"
	"github.com/frahmantamala/coaching-payments/internal/transport/swagger"
)

type RouterConfig struct {
	AllowedOrigins []string
	OpenAPIPath    string
	// OpenAPI enables contract validation of incoming requests when set.
	OpenAPI *openapi3.T
	// AdminKey verifies operator tokens. Admin routes are not mounted
	// without it.
	AdminKey *rsa.PublicKey
}

func RegisterAllRoutes(
	router chi.Router,
	cfg RouterConfig,
	healthHandler *HealthHandler,
	paymentHandler *payment.Handler,
	adminHandler *payment.AdminHandler,
	logger *slog.Logger,
) error {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", middleware.TraceIDHeader},
		ExposedHeaders: []string{middleware.TraceIDHeader},
		MaxAge:         300,
	})

	router.Use(corsHandler.Handler)
	router.Use(middleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, cfg.OpenAPIPath)
	})
	router.Handle("/swagger/*", swagger.Handler())

	var validate func(http.Handler) http.Handler
	if cfg.OpenAPI != nil {
		v, err := middleware.ValidateRequests(cfg.OpenAPI, logger)
		if err != nil {
			return err
		}
		validate = v
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		r.Group(func(pr chi.Router) {
			if validate != nil {
				pr.Use(validate)
			}
			pr.Post("/payments/confirm", paymentHandler.ConfirmPayment)
		})

		if cfg.AdminKey != nil && adminHandler != nil {
			r.Route("/admin", func(ar chi.Router) {
				ar.Use(middleware.Authenticate(cfg.AdminKey, logger))
				ar.Use(middleware.RequirePermissions(logger, middleware.PermissionReadPayments))
				ar.Get("/pending-payments/{id}", adminHandler.GetPendingPayment)
				ar.Get("/invoices", adminHandler.ListInvoices)
			})
		} else {
			logger.Warn("admin routes disabled, no jwt public key configured")
		}
	})

	return nil
}
