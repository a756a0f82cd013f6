package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxorio/fsmruntime/examples/smartdoor"
	"github.com/fluxorio/fsmruntime/pkg/kind"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect registered kind definitions",
}

var inspectDOT bool

func init() {
	inspectKindsCmd.Flags().BoolVar(&inspectDOT, "dot", false, "print a Graphviz DOT rendering of each kind's state graph")
	inspectCmd.AddCommand(inspectKindsCmd)
}

// kindsRegistry builds the registry fsmrtd serves; factored out so `serve`
// and `inspect kinds` always agree on what's registered.
func kindsRegistry() (*kind.Registry, error) {
	kinds := kind.NewRegistry()
	doorDef, err := smartdoor.Build()
	if err != nil {
		return nil, err
	}
	if err := kinds.Register(doorDef); err != nil {
		return nil, err
	}
	return kinds, nil
}

var inspectKindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List registered kinds, or render one as DOT with --dot <name>",
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds, err := kindsRegistry()
		if err != nil {
			return err
		}

		if inspectDOT {
			if len(args) != 1 {
				return fmt.Errorf("--dot requires exactly one kind name argument")
			}
			def, ok := kinds.Get(args[0])
			if !ok {
				return fmt.Errorf("kind %q not registered", args[0])
			}
			fmt.Println(def.ToDOT())
			return nil
		}

		for _, d := range kinds.List() {
			fmt.Printf("%s\tstates=%v\tevents=%v\n", d.Name, d.States, d.Events)
		}
		return nil
	},
}
