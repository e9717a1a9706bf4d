package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/coaching-payments/internal/payment"
	"github.com/frahmantamala/coaching-payments/internal/transport/middleware"
	"github.com/frahmantamala/coaching-payments/internal/transport/rest"
	"github.com/frahmantamala/coaching-payments/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle payment confirmation requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

func startHTTPServer() {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init(cfg.Environment, cfg.Observability.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializeDependencies(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize dependencies", "error", err)
		os.Exit(1)
	}
	defer deps.Close()

	router, err := setupRoutes(ctx, deps)
	if err != nil {
		log.Error("failed to set up routes", "error", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", "address", addr, "driver", cfg.Database.Driver)
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("received signal, shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed to start", "error", err)
			deps.Close()
			os.Exit(1)
		}
	}

	log.Info("server stopped")
}

func setupRoutes(ctx context.Context, deps *Dependencies) (*chi.Mux, error) {
	cfg := deps.Config
	routerCfg := rest.RouterConfig{
		AllowedOrigins: cfg.Server.Origins(),
		OpenAPIPath:    cfg.Server.OpenAPIPath,
	}

	doc, err := middleware.LoadOpenAPI(ctx, cfg.Server.OpenAPIPath)
	if err != nil {
		deps.Logger.Warn("openapi contract not loaded, request validation disabled",
			"path", cfg.Server.OpenAPIPath, "error", err)
	} else {
		routerCfg.OpenAPI = doc
	}

	if cfg.Security.JWTPublicKey != "" {
		key, err := cfg.Security.GetPublicKey()
		if err != nil {
			return nil, err
		}
		routerCfg.AdminKey = key
	}

	router := chi.NewRouter()
	err = rest.RegisterAllRoutes(router, routerCfg,
		rest.NewHealthHandler(deps.Checks),
		payment.NewHandler(deps.Service, deps.Logger),
		payment.NewAdminHandler(deps.PendingPayment, deps.Invoice, deps.Logger),
		deps.Logger,
	)
	if err != nil {
		return nil, err
	}
	return router, nil
}
