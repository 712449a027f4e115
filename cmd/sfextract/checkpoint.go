package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"sfextract/pkg/checkpoint"
	"sfextract/pkg/config"
	"sfextract/pkg/logger"
	"sfextract/pkg/ui"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect or discard the resume point of a job",
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored checkpoint",
	Args:  cobra.NoArgs,
	RunE:  runCheckpointShow,
}

var checkpointClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the stored checkpoint so the next run starts fresh",
	Args:  cobra.NoArgs,
	RunE:  runCheckpointClear,
}

func init() {
	rootCmd.AddCommand(checkpointCmd)
	checkpointCmd.AddCommand(checkpointShowCmd)
	checkpointCmd.AddCommand(checkpointClearCmd)

	checkpointCmd.PersistentFlags().StringVar(&checkpointPath, "checkpoint", "", "checkpoint file path")
	checkpointCmd.PersistentFlags().StringVarP(&entityName, "entity", "e", "", "entity the checkpoint belongs to")
}

func openCheckpoints() (checkpoint.Store, *config.Config, error) {
	flags := globalFlags()
	if checkpointPath != "" {
		flags["checkpoint"] = checkpointPath
	}
	if entityName != "" {
		flags["entity"] = entityName
	}
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	store, err := checkpoint.New(cfg.Checkpoint, logger.GetLogger())
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func runCheckpointShow(cmd *cobra.Command, args []string) error {
	store, _, err := openCheckpoints()
	if err != nil {
		return err
	}
	defer closeStore(store)

	st, err := store.Load(cmd.Context())
	if err != nil {
		return err
	}
	ui.PrintInfo("Location", store.Location())
	if st == nil {
		ui.PrintSuccess("No checkpoint, the next run starts fresh")
		return nil
	}

	info := checkpoint.Describe(st)
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ui.PrintInfo(k, fmt.Sprintf("%v", info[k]))
	}
	return nil
}

func runCheckpointClear(cmd *cobra.Command, args []string) error {
	store, _, err := openCheckpoints()
	if err != nil {
		return err
	}
	defer closeStore(store)

	if err := store.Clear(cmd.Context()); err != nil {
		return err
	}
	ui.PrintSuccess("Checkpoint cleared: " + store.Location())
	return nil
}

func closeStore(store checkpoint.Store) {
	if c, ok := store.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}
