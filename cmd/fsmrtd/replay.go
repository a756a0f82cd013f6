package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fluxorio/fsmruntime/pkg/eventlog"
)

var replayLimit int

func init() {
	replayCmd.Flags().IntVar(&replayLimit, "limit", 0, "maximum number of records to print (0 = all)")
}

var replayCmd = &cobra.Command{
	Use:   "replay <tenant> <kind> <instance-id>",
	Short: "Print an instance's event log, oldest first",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := eventlog.New(filepath.Join(cfg.DataRoot, "eventlog"))

		recs, err := log.List(args[0], args[1], args[2], eventlog.ListOpts{Limit: replayLimit})
		if err != nil {
			return fmt.Errorf("list event log: %w", err)
		}
		for _, r := range recs {
			b, err := json.Marshal(r)
			if err != nil {
				return err
			}
			fmt.Println(string(b))
		}
		return nil
	},
}
