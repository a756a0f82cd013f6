// Command fsmrtd is the fsmruntime operator CLI: serve the runtime, inspect
// registered kinds, replay an instance's event log and prune old records.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fluxorio/fsmruntime/pkg/corelog"
	"github.com/fluxorio/fsmruntime/pkg/rtconfig"
)

var (
	cfgPath string
	logger  corelog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fsmrtd",
	Short: "fsmrtd operates a multi-tenant FSM runtime",
	Long: `fsmrtd hosts the Navigator/Manager runtime described by the fsmruntime
specification: create and drive tenant-scoped FSM instances, run their
declarative effect trees, and persist state through the hybrid storage
substrate.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a runtime config YAML file (defaults applied when omitted)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit structured JSON logs via zerolog instead of plain text")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(pruneCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	asJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	if asJSON {
		logger = corelog.NewZerologLogger(level)
		return
	}
	logger = corelog.NewDefaultLogger()
}

func loadConfig() (rtconfig.Config, error) {
	cfg, err := rtconfig.Load(cfgPath)
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}
