package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/loom-rpc/loom/internal/config"
	"github.com/loom-rpc/loom/internal/obs"
)

var (
	cfgFile       string
	addressFlag   string
	encodingsFlag string
	wsFlag        bool

	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "loomctl",
	Short:         "loomctl dials, listens, and pings loom RPC endpoints",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loomctl: load config: %w", err)
		}
		if addressFlag != "" {
			cfg.Address = addressFlag
		}
		if encodingsFlag != "" {
			cfg.Encodings = strings.Split(encodingsFlag, ",")
		}

		logger = obs.New("loomctl")
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// RootCmd returns the root cobra.Command, for use in tests.
func RootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.loom/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&addressFlag, "address", "", "peer address (host:port)")
	rootCmd.PersistentFlags().StringVar(&encodingsFlag, "encodings", "", "comma-separated encodings to advertise in HELLO")
	rootCmd.PersistentFlags().BoolVar(&wsFlag, "ws", false, "use WebSocket transport instead of raw TCP")
}
