// Command threadsense serves the Facebook comment scraping and sentiment API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ibeckermayer/threadsense/internal/app"
	"github.com/ibeckermayer/threadsense/internal/config"
	"github.com/ibeckermayer/threadsense/internal/logging"
	"github.com/ibeckermayer/threadsense/internal/scheduler"
	"github.com/ibeckermayer/threadsense/internal/server"
	"github.com/ibeckermayer/threadsense/internal/store"
)

func main() {
	bootLog := logrus.New()

	// Load or create configuration
	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatalf("could not load config: %v", err)
	}
	if path, err := config.ConfigPath(); err == nil {
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			if err := cfg.Save(); err != nil {
				bootLog.Warnf("could not save default config: %v", err)
			} else {
				bootLog.Infof("created default config at: %s", path)
			}
		}
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		bootLog.Fatalf("invalid log config: %v", err)
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("threadsense stopped")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	var archive app.Archive
	sched, err := scheduler.New("", log)
	if err != nil {
		return err
	}
	if cfg.Archive.Enabled {
		dbPath, err := cfg.Archive.DBPath()
		if err != nil {
			return err
		}
		st, err := store.New(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer st.Close()
		archive = st

		if err := sched.AddPruneJob(cfg.Archive.PruneSchedule, cfg.Archive.Retention(), st); err != nil {
			return err
		}
		log.WithField("path", dbPath).Info("archive enabled")
	}

	a, err := app.New(cfg, app.NewFactory(log), archive, log)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           server.New(a, log).SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("threadsense starting...")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case err, ok := <-errCh:
			if ok {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				if err := a.ReloadConfig(); err != nil {
					log.WithError(err).Error("failed to reload config")
				}
				continue
			}

			log.WithField("signal", sig.String()).Info("shutting down")
			// Scrapes in flight get their full request timeout to finish
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Scraping.RequestTimeout()+5*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		}
	}
}
