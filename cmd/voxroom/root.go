package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/voxroom/internal/adapters/controlplane"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "voxroom",
	Short:   "Terminal client for voxroom voice rooms",
	Long:    `Join a voxroom room from the terminal, chat with its members and the AI agent, and read stored history.`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger(viper.GetString("log_level"))
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "control plane base URL")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level written to stderr")
	rootCmd.PersistentFlags().Duration("timeout", 10*time.Second, "timeout for control plane requests")
	rootCmd.PersistentFlags().String("password", "", "account password (unknown accounts are registered)")

	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	_ = viper.BindPFlag("password", rootCmd.PersistentFlags().Lookup("password"))
	viper.SetEnvPrefix("VOX")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(joinCmd, historyCmd)
}

func setupLogger(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

var errNoPassword = errors.New("a password is required (--password or VOX_PASSWORD)")

// signIn authenticates cp as user with the configured password.
func signIn(ctx context.Context, cp *controlplane.Client, user, password string) error {
	if password == "" {
		return errNoPassword
	}
	if _, err := cp.SignIn(ctx, user, password); err != nil {
		return fmt.Errorf("sign in as %s: %w", user, err)
	}
	return nil
}
