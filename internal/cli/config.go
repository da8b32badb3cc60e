// Package cli provides utility functions for the command line interface.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// InitViperConfig initializes the Viper configuration for a command.
//
// An explicit --config file wins. Otherwise a file named after the command is searched for in the
// current directory, the user configuration directory, /etc/<cmdName> and next to the executable.
// Environment variables prefixed with the upper cased command name override file values.
func InitViperConfig(cmdName string, cmd *cobra.Command, vip *viper.Viper) error {
	if f := cmd.Flag("config"); f != nil && f.Value.String() != "" {
		vip.SetConfigFile(f.Value.String())
	} else {
		vip.SetConfigName(cmdName)
		vip.AddConfigPath(".")
		if d, err := os.UserConfigDir(); err == nil {
			vip.AddConfigPath(filepath.Join(d, cmdName))
		}
		vip.AddConfigPath(filepath.Join("/etc", cmdName))

		if binPath, err := os.Executable(); err != nil {
			slog.Warn("Failed to get current executable path, not adding it as a config dir", "error", err)
		} else {
			vip.AddConfigPath(filepath.Dir(binPath))
		}
	}

	if err := vip.ReadInConfig(); err != nil {
		var e viper.ConfigFileNotFoundError
		if !errors.As(err, &e) {
			return fmt.Errorf("invalid configuration file: %w", err)
		}
		slog.Info("No configuration file, using defaults, env variables and flags")
	} else {
		slog.Info("Using configuration file", "file", vip.ConfigFileUsed())
	}

	// Handle environment. Every key is bound to a flag, so AutomaticEnv sees all of them:
	// base-url is read from RECORDFEED_BASE_URL.
	vip.SetEnvPrefix(strings.ToUpper(strings.ReplaceAll(cmdName, "-", "_")))
	vip.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	vip.AutomaticEnv()

	return nil
}

// InstallConfigFlag adds a config flag to the command.
func InstallConfigFlag(cmd *cobra.Command) *string {
	flag := cmd.PersistentFlags().String("config", "", "use a specific configuration file")
	if err := cmd.MarkPersistentFlagFilename("config", "yaml", "yml", "toml", "json"); err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark config flag as filename: %v", err))
	}
	return flag
}
