package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fluxorio/fsmruntime/pkg/capability"
	"github.com/fluxorio/fsmruntime/pkg/effects"
	"github.com/fluxorio/fsmruntime/pkg/eventlog"
	"github.com/fluxorio/fsmruntime/pkg/registry"
	"github.com/fluxorio/fsmruntime/pkg/store"
	"github.com/fluxorio/fsmruntime/pkg/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the FSM runtime and block until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		blob, err := store.New(filepath.Join(cfg.DataRoot, "blob"))
		if err != nil {
			return fmt.Errorf("open blob store: %w", err)
		}
		log := eventlog.New(filepath.Join(cfg.DataRoot, "eventlog"))
		bus := telemetry.NewBus(logger)

		reg := effects.NewCapabilityRegistry()
		opts := []effects.Option{
			effects.WithLogger(logger),
			effects.WithCapabilityRegistry(reg),
			effects.WithLLMPort("stub", capability.StubLLMPort{}),
			effects.WithAgentCoordinator(capability.StubAgentCoordinator{}),
			effects.WithRAGPort(capability.StubRAGPort{}),
		}
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			opts = append(opts, effects.WithLLMPort("openai", capability.NewOpenAILLMPort(key, os.Getenv("OPENAI_BASE_URL"), 0, 0)))
			logger.Infof("openai call_llm provider enabled")
		}
		eng := effects.NewEngine(cfg, bus, opts...)

		kinds, err := kindsRegistry()
		if err != nil {
			return fmt.Errorf("build kind registry: %w", err)
		}

		mgr := registry.NewManager(kinds, cfg, blob, log, bus, eng, logger)
		defer mgr.Close()
		// The Manager is the runtime's whole surface; exposed to operators
		// via a future RPC layer, out of this spec's scope.

		recovered, err := mgr.Recover("")
		if err != nil {
			logger.Errorf("fsmrtd: recovery scan failed: %v", err)
		}

		logger.Infof("fsmrtd serving from %s (%d kinds registered, %d shards, %d instances recovered)", cfg.DataRoot, len(kinds.List()), cfg.ShardCount, recovered)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Infof("fsmrtd shutting down")
		return nil
	},
}
