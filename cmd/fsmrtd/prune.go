package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fluxorio/fsmruntime/pkg/eventlog"
)

var (
	pruneTenant   string
	pruneKeepDays int
)

func init() {
	pruneCmd.Flags().StringVar(&pruneTenant, "tenant", "", "tenant to prune (required)")
	pruneCmd.Flags().IntVar(&pruneKeepDays, "keep-days", 30, "delete event-log files whose most recent record is older than this many days")
	pruneCmd.MarkFlagRequired("tenant")
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old event log files for a tenant (§4.4.2 retention)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := eventlog.New(filepath.Join(cfg.DataRoot, "eventlog"))

		removed, err := log.Prune(eventlog.PruneOpts{TenantID: pruneTenant, KeepDays: pruneKeepDays})
		if err != nil {
			return fmt.Errorf("prune: %w", err)
		}
		fmt.Printf("removed %d instance event-log file(s) for tenant %q older than %d days\n", removed, pruneTenant, pruneKeepDays)
		return nil
	},
}
