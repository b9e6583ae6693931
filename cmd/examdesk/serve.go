package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	api "github.com/mind-engage/examdesk/internal/api/http"
	"github.com/mind-engage/examdesk/internal/auth"
	authmw "github.com/mind-engage/examdesk/internal/auth/middleware"
	"github.com/mind-engage/examdesk/internal/discovery"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides HTTP_ADDR)")
	serveCmd.Flags().Duration("shutdown-timeout", 15*time.Second, "grace period for in-flight requests")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTPAddr = addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	a, err := newApp(startCtx, cfg, true)
	cancel()
	if err != nil {
		return err
	}
	defer a.close()

	tokens := authmw.NewAuthService(cfg.AuthSecret, cfg.TokenTTL)
	var google *auth.Google
	if cfg.EnableGoogleAuth {
		google = auth.NewGoogle(cfg, tokens, a.users, a.log.With("google"))
	}

	srv := api.NewServer(api.Deps{
		Questions:   a.questions,
		Exams:       a.exams,
		Users:       a.users,
		Notify:      a.notify,
		Stats:       a.stats,
		Audit:       a.audit,
		Blobs:       a.blobs,
		Tokens:      tokens,
		Google:      google,
		Ready:       a.readyCheck,
		Log:         a.log,
		PublicURL:   cfg.PublicURL,
		CORSOrigins: cfg.CORSOrigins,
	})
	hs := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          a.log.Std(),
	}

	if cfg.ConsulAddr != "" {
		reg, err := discovery.NewRegistry(cfg.ConsulAddr, a.log.With("consul"))
		if err != nil {
			return err
		}
		port, err := discovery.PortFromAddr(cfg.HTTPAddr)
		if err != nil {
			return err
		}
		if err := reg.Register(discovery.Registration{
			ID:         cfg.ServiceID,
			Name:       cfg.ServiceName,
			Address:    cfg.ServiceAddress,
			Port:       port,
			Tags:       []string{cfg.Env},
			HealthPath: "/healthz",
		}); err != nil {
			// discovery is optional; keep serving
			a.log.Error("consul register", err, nil)
		} else {
			defer reg.Deregister(cfg.ServiceID)
		}
	}

	errc := make(chan error, 1)
	go func() {
		a.log.Infof("listening on %s (db=%s, blobs=%s, env=%s)", cfg.HTTPAddr, cfg.DBDriver, cfg.BlobDriver, cfg.Env)
		errc <- hs.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	grace, _ := cmd.Flags().GetDuration("shutdown-timeout")
	a.log.Infof("shutting down")
	sctx, scancel := context.WithTimeout(context.Background(), grace)
	defer scancel()
	return hs.Shutdown(sctx)
}
