package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/oauth"
	_ "github.com/lib/pq"

	"github.com/istm-portal/backend/app"
	"github.com/istm-portal/backend/config"
	"github.com/istm-portal/backend/httpx"
	"github.com/istm-portal/backend/log"
	"github.com/istm-portal/backend/routes"
	"github.com/istm-portal/backend/store"
	"github.com/istm-portal/backend/store/mongostore"
	"github.com/istm-portal/backend/store/pgstore"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatal("main.config:", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal("main.store.open:", err)
	}
	defer st.Close(context.Background())
	log.Infof("using %s backend", cfg.Backend)

	bearerServer := oauth.NewBearerServer(
		cfg.TokenSecret, cfg.TokenTTL, httpx.CredentialsVerifier(st), nil)

	application := app.App{
		Store:        st,
		BearerServer: bearerServer,
		Config:       cfg,
	}

	handler := routes.Wire(application)

	err = runServer(ctx, cfg, handler)
	if !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("main.server:", err)
	}
}

// openStore constructs the one persistence adapter the whole process uses.
// Changing data source means restarting with a different configuration;
// there is no runtime flag to flip mid-session.
func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return mongostore.Open(connectCtx, cfg.MongoURI, cfg.MongoDB)
	default:
		return pgstore.Open(cfg.PostgresURL)
	}
}

func runServer(ctx context.Context, cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Info("Listening on " + cfg.Addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return http.ErrServerClosed
	}
}
