// Package commands implements the recordfeed command line.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/ubuntu/recordfeed/internal/api"
	"github.com/ubuntu/recordfeed/internal/api/httpapi"
	"github.com/ubuntu/recordfeed/internal/cli"
	"github.com/ubuntu/recordfeed/internal/constants"
	"github.com/ubuntu/recordfeed/internal/model"
	"github.com/ubuntu/recordfeed/internal/server"
	"github.com/ubuntu/recordfeed/internal/view"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	// ctx is canceled on Quit and stops long running commands.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	daemon *server.Server
}

// appConfig holds the configuration for the application. Keys are the flag names.
type appConfig struct {
	Verbosity   int           `mapstructure:"verbose"`
	BaseURL     string        `mapstructure:"base-url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RecordsPath string        `mapstructure:"records-path"`
	KeyMap      string        `mapstructure:"keymap"`
	Output      string        `mapstructure:"output"`

	Schedule string `mapstructure:"schedule"`

	Serve serveConfig `mapstructure:",squash"`
}

// New creates a new App instance with default values.
func New() (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	a := App{ctx: ctx, cancel: cancel}

	a.cmd = &cobra.Command{
		Use:   constants.CmdName,
		Short: "Fetch records from a remote and render them",
		Long: `Fetch records from a remote JSON endpoint and render them.

Records are read from <base-url>/<id> one at a time, or from <base-url>?<key>=<value> as a filtered collection.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetVerbosity(a.config.Verbosity) // Set verbosity before loading config
			if err := a.viper.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if err := cli.InitViperConfig(constants.CmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}
			slog.Debug("Got app config", "config", a.config)

			cli.SetVerbosity(a.config.Verbosity)
			return nil
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootFlags(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}

	installGetCmd(&a)
	installListCmd(&a)
	installWatchCmd(&a)
	installServeCmd(&a)
	a.installVersion()

	return &a, nil
}

func installRootFlags(app *App) {
	flags := app.cmd.PersistentFlags()

	flags.CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	flags.StringVar(&app.config.BaseURL, "base-url", constants.DefaultBaseURL, "URL of the remote records collection")
	flags.DurationVar(&app.config.Timeout, "timeout", constants.DefaultResponseTimeout, "how long to wait for the remote to answer")
	flags.StringVar(&app.config.RecordsPath, "records-path", "", "path of the records inside the response body, like data.items")
	flags.StringVar(&app.config.KeyMap, "keymap", "", "TOML file mapping record keys to the keys used by the remote")
	flags.StringVarP(&app.config.Output, "output", "o", string(view.FormatTable), "output format: table, json or yaml")

	if err := app.cmd.MarkPersistentFlagFilename("keymap", "toml"); err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark keymap flag as filename: %v", err))
	}
}

// Run executes the command and associated process, returning an error if any.
func (a *App) Run() error {
	return a.cmd.ExecuteContext(a.ctx)
}

// UsageError returns if the error is a command parsing or runtime one.
func (a *App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// Hup prints all goroutine stack traces and return false to signal you shouldn't quit.
func (a *App) Hup() (shouldQuit bool) {
	buf := make([]byte, 1<<16)
	n := runtime.Stack(buf, true)
	fmt.Printf("%s", buf[:n])
	return false
}

// Quit stops any running command. The stub server, if it runs, waits for its connections unless force is set.
func (a *App) Quit(force bool) {
	a.mu.Lock()
	daemon := a.daemon
	a.mu.Unlock()

	if daemon != nil {
		daemon.Quit(force)
	}
	a.cancel()
}

// RootCmd returns the root command.
func (a *App) RootCmd() *cobra.Command {
	return a.cmd
}

// keyMap loads the configured key map, if any.
func (a *App) keyMap() (model.KeyMap, error) {
	if a.config.KeyMap == "" {
		return nil, nil
	}
	return model.LoadKeyMap(a.config.KeyMap)
}

// newClient returns the record API client configured for the remote.
func (a *App) newClient(args ...httpapi.Options) (*httpapi.Client, error) {
	km, err := a.keyMap()
	if err != nil {
		return nil, err
	}

	opts := []httpapi.Options{
		httpapi.WithResponseTimeout(a.config.Timeout),
		httpapi.WithKeyMap(km),
		httpapi.WithRecordsPath(a.config.RecordsPath),
	}
	return httpapi.New(a.config.BaseURL, append(opts, args...)...), nil
}

// parseQuery parses key=value arguments into a query.
func parseQuery(args []string) (api.Query, error) {
	q := make(api.Query, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid filter %q, expected key=value", arg)
		}
		if !model.IsKey(k) {
			return nil, fmt.Errorf("unknown filter key %q, expected one of %s", k, strings.Join(model.Keys(), ", "))
		}
		if _, dup := q[k]; dup {
			return nil, fmt.Errorf("filter key %q given more than once", k)
		}
		q[k] = v
	}
	return q, nil
}

// queryArgs validates key=value positional arguments.
func queryArgs(_ *cobra.Command, args []string) error {
	_, err := parseQuery(args)
	return err
}
