package commands

import "github.com/spf13/cobra"

type (
	AppConfig = appConfig
)

// Config returns the configuration of the app.
func (a *App) Config() AppConfig {
	return a.config
}

// SetArgs set some arguments on root command for tests.
func (a *App) SetArgs(args ...string) {
	a.cmd.SetArgs(args)
}

// SetSilenceUsage set the SilenceUsage flag on root command for tests.
func (a *App) SetSilenceUsage(silence bool) {
	a.cmd.SilenceUsage = silence
}

// Cmd returns the root command, to redirect its outputs in tests.
func (a *App) Cmd() *cobra.Command {
	return a.cmd
}

// DaemonAddr returns the address the stub server listens on, or an empty string before it listens.
func (a *App) DaemonAddr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.daemon == nil {
		return ""
	}
	return a.daemon.Addr()
}

// ParseQuery exposes parseQuery for tests.
var ParseQuery = parseQuery
