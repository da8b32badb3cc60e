// Package main is the entry point of the recordfeed command line.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ubuntu/recordfeed/cmd/recordfeed/commands"
	"github.com/ubuntu/recordfeed/internal/constants"
)

func main() {
	slog.SetLogLoggerLevel(constants.DefaultLogLevel)

	a, err := commands.New()
	if err != nil {
		slog.Error("Failed to create the application", "error", err)
		os.Exit(1)
	}

	os.Exit(run(a))
}

type app interface {
	Run() error
	UsageError() bool
	Hup() bool
	Quit(force bool)
}

func run(a app) int {
	defer handleSignals(a)()

	if err := a.Run(); err != nil {
		slog.Error(err.Error())

		if a.UsageError() {
			return 2
		}
		return 1
	}

	return 0
}

// handleSignals forwards process signals to a until the returned function is called.
// The first interrupt quits gracefully and the next one forces the quit.
func handleSignals(a app) (stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		var quitting bool
		for {
			var sig os.Signal
			select {
			case <-done:
				return
			case sig = <-sigs:
			}

			if sig == syscall.SIGHUP && !a.Hup() {
				continue
			}
			if quitting {
				slog.Warn("Forcing quit", "signal", sig)
				a.Quit(true)
				return
			}
			slog.Info("Quitting, signal again to force", "signal", sig)
			quitting = true
			a.Quit(false)
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
		<-stopped
	}
}
