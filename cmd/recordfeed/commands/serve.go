package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/ubuntu/recordfeed/internal/api/catalog"
	"github.com/ubuntu/recordfeed/internal/constants"
	"github.com/ubuntu/recordfeed/internal/metrics"
	"github.com/ubuntu/recordfeed/internal/server"
)

// serveConfig holds the configuration of the stub server.
type serveConfig struct {
	Catalog string `mapstructure:"catalog"`
	Prefix  string `mapstructure:"prefix"`

	ListenHost  string `mapstructure:"listen-host"`
	ListenPort  int    `mapstructure:"listen-port"`
	MetricsHost string `mapstructure:"metrics-host"`
	MetricsPort int    `mapstructure:"metrics-port"`

	RateLimit float64 `mapstructure:"rate-limit"`
	RateBurst int     `mapstructure:"rate-burst"`

	ReadTimeout    time.Duration `mapstructure:"read-timeout"`
	WriteTimeout   time.Duration `mapstructure:"write-timeout"`
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
	MaxHeaderBytes int           `mapstructure:"max-header-bytes"`
}

func installServeCmd(app *App) {
	serveCmd := &cobra.Command{
		Use:   "serve <catalog>",
		Short: "Serve the records of a JSON file over HTTP",
		Long: `Serve the records of a JSON array file over HTTP, to develop against a local remote.

A record is served on <prefix>/<id> and the filtered collection on <prefix>?<key>=<value>.
The file is reloaded when it changes. Request metrics are exposed on the metrics port, unless it is 0.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				app.config.Serve.Catalog = args[0]
			}
			if app.config.Serve.Catalog == "" {
				return errors.New("no catalog file to serve")
			}
			slog.Info("Running serve command", "catalog", app.config.Serve.Catalog)
			return app.serveRun()
		},
	}

	flags := serveCmd.Flags()
	flags.StringVar(&app.config.Serve.Catalog, "catalog", "", "JSON file holding the array of records to serve")
	flags.StringVar(&app.config.Serve.Prefix, "prefix", constants.DefaultServePrefix, "path the records are served under")
	flags.StringVar(&app.config.Serve.ListenHost, "listen-host", "", "host to listen on")
	flags.IntVar(&app.config.Serve.ListenPort, "listen-port", constants.DefaultServePort, "port to listen on")
	flags.StringVar(&app.config.Serve.MetricsHost, "metrics-host", "", "host to expose metrics on")
	flags.IntVar(&app.config.Serve.MetricsPort, "metrics-port", constants.DefaultMetricsPort, "port to expose metrics on, 0 to disable")
	flags.Float64Var(&app.config.Serve.RateLimit, "rate-limit", 0, "requests per second allowed per client address, 0 to disable")
	flags.IntVar(&app.config.Serve.RateBurst, "rate-burst", 10, "burst of requests allowed per client address")
	flags.DurationVar(&app.config.Serve.ReadTimeout, "read-timeout", 5*time.Second, "maximum duration for reading a request")
	flags.DurationVar(&app.config.Serve.WriteTimeout, "write-timeout", 10*time.Second, "maximum duration before timing out writes of a response")
	flags.DurationVar(&app.config.Serve.RequestTimeout, "request-timeout", 3*time.Second, "maximum duration for handling a request")
	flags.IntVar(&app.config.Serve.MaxHeaderBytes, "max-header-bytes", 1<<13, "maximum size of request headers")

	if err := serveCmd.MarkFlagFilename("catalog", "json"); err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark catalog flag as filename: %v", err))
	}

	app.cmd.AddCommand(serveCmd)
}

// serveRun runs the stub server until Quit is called.
func (a *App) serveRun() error {
	km, err := a.keyMap()
	if err != nil {
		return err
	}

	c := a.config.Serve
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	cat := catalog.New(c.Catalog, catalog.WithKeyMap(km))
	// The server outlives a.ctx to shut down gracefully on Quit.
	s, err := server.New(context.WithoutCancel(a.ctx), cat, server.StaticConfig{
		Prefix:         c.Prefix,
		ReadTimeout:    c.ReadTimeout,
		WriteTimeout:   c.WriteTimeout,
		RequestTimeout: c.RequestTimeout,
		MaxHeaderBytes: c.MaxHeaderBytes,
		RateLimit:      c.RateLimit,
		RateBurst:      c.RateBurst,
		ListenHost:     c.ListenHost,
		ListenPort:     c.ListenPort,
	}, server.WithKeyMap(km), server.WithRegistry(reg))
	if err != nil {
		return fmt.Errorf("failed to create server: %v", err)
	}

	a.mu.Lock()
	if a.ctx.Err() != nil {
		a.mu.Unlock()
		return nil
	}
	a.daemon = s
	a.mu.Unlock()

	if c.MetricsPort != 0 {
		ms := a.startMetrics(metrics.Config{
			Host:         c.MetricsHost,
			Port:         c.MetricsPort,
			ReadTimeout:  c.ReadTimeout,
			WriteTimeout: c.WriteTimeout,
		}, reg)
		defer a.stopMetrics(ms)
	}

	return s.Run()
}

// startMetrics serves the metrics of reg in the background.
func (a *App) startMetrics(cfg metrics.Config, reg prometheus.Gatherer) *metrics.Server {
	ms := metrics.NewServer(cfg, reg)
	go func() {
		if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	return ms
}

func (a *App) stopMetrics(ms *metrics.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ms.Shutdown(ctx); err != nil {
		slog.Warn("Metrics server did not shut down gracefully", "error", err)
		_ = ms.Close()
	}
}
