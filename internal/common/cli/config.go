// Package cli provides the configuration and logging helpers shared by the adapter commands.
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
// An explicit --config file wins. Otherwise cmdName.{yaml,json,toml} is looked up in the
// working directory, the user configuration directory and /etc/cmdName.
// Environment variables prefixed with the upper-cased command name override file values.
func InitViperConfig(cmdName string, cmd *cobra.Command, vip *viper.Viper) error {
	if v, err := cmd.Flags().GetString("config"); err == nil && v != "" {
		vip.SetConfigFile(v)
	} else {
		vip.SetConfigName(cmdName)
		vip.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			vip.AddConfigPath(filepath.Join(dir, cmdName))
		}
		vip.AddConfigPath(filepath.Join("/etc", cmdName))
	}

	if err := vip.ReadInConfig(); err != nil {
		var e viper.ConfigFileNotFoundError
		if !errors.As(err, &e) {
			return fmt.Errorf("invalid configuration file: %w", err)
		}
		slog.Info("No configuration file, using defaults, env variables and flags", "error", e)
	} else {
		slog.Info("Using configuration file", "file", vip.ConfigFileUsed())
	}

	vip.SetEnvPrefix(cmdName)
	vip.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	vip.AutomaticEnv()

	// AutomaticEnv only applies to keys viper already knows, bind every prefixed variable
	// so that nested keys can be unmarshalled as well.
	prefix := EnvPrefix(cmdName)
	for _, e := range os.Environ() {
		if !strings.HasPrefix(e, prefix) {
			continue
		}

		name, _, _ := strings.Cut(e, "=")
		k := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(name, prefix)), "_", ".")
		if err := vip.BindEnv(k, name); err != nil {
			return fmt.Errorf("could not bind environment variable: %w", err)
		}
	}

	return nil
}

// EnvPrefix returns the environment variable prefix used for cmdName, including the trailing underscore.
func EnvPrefix(cmdName string) string {
	return strings.ToUpper(strings.ReplaceAll(cmdName, "-", "_")) + "_"
}

// InstallConfigFlag adds a config flag to the command.
func InstallConfigFlag(cmd *cobra.Command) *string {
	return cmd.PersistentFlags().String("config", "", "use a specific configuration file")
}
