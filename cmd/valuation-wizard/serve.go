package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelkehle/valuation-wizard/internal/config"
	"github.com/joelkehle/valuation-wizard/internal/insight"
	"github.com/joelkehle/valuation-wizard/internal/report"
	"github.com/joelkehle/valuation-wizard/internal/server"
	"github.com/joelkehle/valuation-wizard/internal/statestore"
	"github.com/joelkehle/valuation-wizard/internal/telemetry"
	"github.com/joelkehle/valuation-wizard/internal/webhook"
	"github.com/joelkehle/valuation-wizard/internal/wizard"
)

const (
	purgeInterval    = time.Hour
	insightCacheSize = 512
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the wizard, its JSON API and the results pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, a.cfg, a.logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint, log)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	kv, err := statestore.OpenKV(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer kv.Close()
	if p, ok := kv.(purger); ok && cfg.Retention() > 0 {
		go purgeLoop(ctx, p, purgeInterval, cfg.Retention(), log)
	}

	var submitter wizard.Submitter
	if cfg.Webhook.URL != "" {
		submitter = webhook.NewClient(cfg.Webhook.URL, webhook.WithHTTPClient(&http.Client{Timeout: cfg.WebhookTimeout()}))
	} else {
		log.Warn("no webhook configured; submissions will not be delivered")
	}

	shareBase := cfg.Server.ShareBaseURL
	if shareBase == "" {
		shareBase = localResultsURL(cfg.Server.Addr)
	}
	svc := wizard.NewService(wizard.Config{
		ShareBaseURL:    shareBase,
		Source:          cfg.Wizard.Source,
		ProcessingDelay: cfg.ProcessingDelay(),
		DeliveryTimeout: cfg.WebhookTimeout(),
	}, submitter, wizard.WithLogger(log))

	writer := insight.Fallback{Secondary: insight.StaticWriter{}, Logger: log}
	if cfg.Insight.Enabled {
		primary, err := insight.NewAnthropicWriter(cfg.Insight.APIKey)
		if err != nil {
			return err
		}
		writer.Primary = insight.NewCached(primary, insightCacheSize)
	}

	styles := report.NewStyles(cfg.Server.WebDir)
	handler := server.New(server.Deps{
		Wizard: svc,
		KV:     kv,
		Cookie: statestore.CookieConfig{
			Name:     cfg.Store.CookieName,
			MaxBytes: cfg.Store.CookieMaxBytes,
			MaxAge:   cfg.CookieMaxAge(),
			Secure:   cfg.Server.SecureCookies,
		},
		Prefixes: cfg.Store.Prefixes,
		WebDir:   cfg.Server.WebDir,
		Styles:   styles,
		PDF:      report.NewChromiumPDFRenderer(styles),
		Insight:  writer,
		Logger:   log,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      time.Minute,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Info("valuation wizard listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("store", cfg.Store.Driver),
		zap.String("share_base_url", shareBase),
		zap.Bool("webhook", submitter != nil))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	dctx, cancel := context.WithTimeout(context.Background(), cfg.WebhookTimeout()+5*time.Second)
	defer cancel()
	if err := svc.Drain(dctx); err != nil {
		log.Warn("webhook deliveries still in flight at exit", zap.Error(err))
	}
	return nil
}

type purger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// purgeLoop drops durable entries older than retention once per interval
// until ctx is done.
func purgeLoop(ctx context.Context, p purger, interval, retention time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := p.Purge(ctx, time.Now().Add(-retention))
		if err != nil {
			log.Warn("purge durable state", zap.Error(err))
		} else if n > 0 {
			log.Info("purged stale durable state", zap.Int64("entries", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func localResultsURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://localhost/results"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/results"
}
