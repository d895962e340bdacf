package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohdafzal1700/Doc-Door-sub002/global/config"
	"github.com/mohdafzal1700/Doc-Door-sub002/logger"
)

var (
	// global flags
	configPath string
	token      string
	logLevel   string

	cfg *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "docdoor",
	Short: "Realtime client for the DocDoor chat and notification gateway",
	Long: `docdoor opens the same chat and notification sockets the web client uses,
reconnects them with backoff, and prints every inbound event as a JSON line.

The access token comes from --token or DOCDOOR_TOKEN.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			c.Log.Level = logLevel
		}
		if err := logger.SetLevel(c.Log.Level); err != nil {
			return err
		}
		if token == "" {
			token = strings.TrimSpace(os.Getenv("DOCDOOR_TOKEN"))
		}
		cfg = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "access token (default $DOCDOOR_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	rootCmd.AddCommand(listenCmd, sendCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
