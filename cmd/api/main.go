package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/signalix/loginbroker/internal/auth"
	"github.com/signalix/loginbroker/internal/config"
	"github.com/signalix/loginbroker/internal/db"
	httphandler "github.com/signalix/loginbroker/internal/http"
	"github.com/signalix/loginbroker/internal/http/handlers"
	"github.com/signalix/loginbroker/internal/login"
	"github.com/signalix/loginbroker/internal/provider"
	"github.com/signalix/loginbroker/internal/repo"
)

const shutdownTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:   "loginbroker",
	Short: "Phone-number login broker",
	Long: `loginbroker drives the code / two-factor login handshake against a
messaging provider on behalf of web clients and stores the exported
session strings for later use.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	rootCmd.Flags().String("port", "", "HTTP listen port (overrides PORT)")
	rootCmd.Flags().Bool("reset-storage", false, "Drop and recreate the session table at startup")
	rootCmd.Flags().String("provider-mode", "", "Provider gateway: http or stub (overrides PROVIDER_MODE)")
}

func main() {
	// Load .env from CWD (env vars override)
	_ = godotenv.Load(".env")

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if cfg.ResetStorage {
		log.Println("Resetting session storage")
		err = db.Reset(database)
	} else {
		err = db.Migrate(database)
	}
	if err != nil {
		return err
	}

	sessionRepo := repo.NewSessionRepo(database)

	gateway, err := newGateway(cfg)
	if err != nil {
		return err
	}
	service := login.NewService(gateway, sessionRepo, login.NewRegistry(), cfg.AttemptMaxAge)

	secret := cfg.AdminJWTSecret
	if secret == "" {
		if secret, err = auth.RandomSecret(); err != nil {
			return fmt.Errorf("failed to generate admin token secret: %w", err)
		}
		log.Println("ADMIN_JWT_SECRET not set; admin tokens will not survive a restart")
	}
	jwtService := auth.NewJWTService(secret, cfg.AdminTokenTTL)
	password, err := auth.NewPasswordChecker(cfg.AdminPassword, 0)
	if err != nil {
		return err
	}

	router := httphandler.NewRouter(
		handlers.NewLoginHandler(service),
		handlers.NewAdminHandler(sessionRepo, service, jwtService, password),
		jwtService,
	)

	// Create HTTP server with timeouts. Writes may wait on the provider.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.ProviderTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Server starting on port %s (provider=%s)", cfg.Port, cfg.ProviderMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return service.RunSweeper(gctx, cfg.SweepInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		if n := service.CloseAll(); n > 0 {
			log.Printf("Closed %d in-flight login attempts", n)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Println("Server exited")
	return nil
}

func newGateway(cfg *config.Config) (provider.Gateway, error) {
	switch cfg.ProviderMode {
	case config.ProviderStub:
		log.Println("Using stub provider; do not use in production")
		return provider.NewStub(cfg.StubCode), nil
	case config.ProviderHTTP:
		return provider.NewHTTPGateway(cfg.ProviderURL, cfg.APIID, cfg.APIHash, cfg.ProviderTimeout), nil
	default:
		return nil, fmt.Errorf("unknown provider mode %q", cfg.ProviderMode)
	}
}
