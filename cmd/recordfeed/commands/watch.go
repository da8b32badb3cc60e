package commands

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/ubuntu/recordfeed/internal/api/httpapi"
	"github.com/ubuntu/recordfeed/internal/constants"
	"github.com/ubuntu/recordfeed/internal/metrics"
	"github.com/ubuntu/recordfeed/internal/viewmodel"
)

func installWatchCmd(app *App) {
	watchCmd := &cobra.Command{
		Use:   "watch [key=value...]",
		Short: "Fetch the records matching filters on a schedule",
		Long: `Fetch the records matching every key=value filter, then fetch them again on each tick of the schedule.

Records are rendered again on every successful fetch and failures are printed, until interrupted.
Fetch metrics are exposed on the metrics port when it is set.
The schedule is a cron expression or a descriptor like "@every 30s" or "@hourly".`,
		Args: queryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("Running watch command", "schedule", app.config.Schedule)
			return app.watchRun(cmd, args)
		},
	}

	watchCmd.Flags().StringVar(&app.config.Schedule, "schedule", constants.DefaultWatchSchedule, "when to fetch again, as a cron expression")
	watchCmd.Flags().StringVar(&app.config.Serve.MetricsHost, "metrics-host", "", "host to expose fetch metrics on")
	watchCmd.Flags().IntVar(&app.config.Serve.MetricsPort, "metrics-port", 0, "port to expose fetch metrics on, 0 to disable")

	app.cmd.AddCommand(watchCmd)
}

// watchRun runs the watch command.
func (a *App) watchRun(cmd *cobra.Command, args []string) error {
	q, err := parseQuery(args)
	if err != nil {
		return err
	}

	sched, err := cron.ParseStandard(a.config.Schedule)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %v", a.config.Schedule, err)
	}

	var clientOpts []httpapi.Options
	if a.config.Serve.MetricsPort != 0 {
		reg := prometheus.NewRegistry()
		clientOpts = append(clientOpts, httpapi.WithObserver(metrics.NewFetch(reg)))
		ms := a.startMetrics(metrics.Config{Host: a.config.Serve.MetricsHost, Port: a.config.Serve.MetricsPort}, reg)
		defer a.stopMetrics(ms)
	}

	p, err := a.newPipeline(cmd, cmd.ErrOrStderr(), clientOpts, viewmodel.WithInitialQuery(q))
	if err != nil {
		return err
	}

	l := cronLogger{slog.Default()}
	c := cron.New(cron.WithLogger(l), cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)))
	c.Schedule(sched, cron.FuncJob(func() {
		sub := p.records.Search(q)
		slog.Debug("Scheduled fetch", "sub", sub.ID())
		// Ticks are skipped while the fetch is pending.
		select {
		case <-sub.Done():
		case <-cmd.Context().Done():
		}
	}))
	c.Start()
	defer func() { <-c.Stop().Done() }()

	return p.runUntilDone(cmd.Context())
}

// cronLogger logs cron events with slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
