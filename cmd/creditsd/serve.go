package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/httpapi"
	"github.com/xraph/credits/observability"
	"github.com/xraph/credits/webhook"
	"github.com/xraph/credits/webhook/nowpayments"
	"github.com/xraph/credits/webhook/stripe"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)
			return c.serve(cmd)
		},
	}
	cmd.Flags().String("addr", ":8080", "listen address")
	_ = c.v.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func (c *cli) serve(cmd *cobra.Command) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(c.v, c.configPath)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	var extra []credits.Option
	if cfg.Metrics {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		extra = append(extra, credits.WithPlugin(
			observability.NewMetricsExtension(observability.NewPrometheusFactory(reg)),
		))
	}

	a, err := c.openConfig(cmd, cfg, extra...)
	if err != nil {
		return err
	}
	defer a.close()

	handler := httpapi.New(a.engine, handlerOptions(a, reg)...)
	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.table != nil {
		a.table.OnChange(a.engine.SetCreditTable)
		stopWatch, err := a.table.Watch()
		if err != nil {
			return err
		}
		defer stopWatch()
	}

	g.Go(func() error {
		a.logger.Info("listening", "addr", srv.Addr, "store", a.cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func handlerOptions(a *app, reg *prometheus.Registry) []httpapi.Option {
	cfg := a.cfg
	opts := []httpapi.Option{
		httpapi.WithLogger(a.logger),
		httpapi.WithGenerators(newGeneratorFactory(cfg.Generator.UpstreamURL, &http.Client{Timeout: cfg.ActionTimeout})),
	}

	var stripeOpts []stripe.Option
	if webhook.Configured(cfg.Stripe.APIKey) {
		stripeOpts = append(stripeOpts, stripe.WithSessionFetcher(stripe.NewSessionFetcher(cfg.Stripe.APIKey)))
	}
	if webhook.Configured(cfg.Stripe.WebhookSecret) {
		opts = append(opts, httpapi.WithVerifier(stripe.New(cfg.Stripe.WebhookSecret, stripeOpts...)))
	} else {
		a.logger.Warn("stripe webhook secret not configured; card webhooks will be refused")
	}
	if webhook.Configured(cfg.NOWPayments.IPNSecret) {
		opts = append(opts, httpapi.WithVerifier(nowpayments.New(cfg.NOWPayments.IPNSecret)))
	} else {
		a.logger.Warn("nowpayments IPN secret not configured; crypto webhooks will be refused")
	}

	if cfg.Metrics {
		opts = append(opts, httpapi.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	}
	return opts
}
