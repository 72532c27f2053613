package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/runvault/runvault/internal/ensemble"
)

var mergeMode string

func newMergeCmd() *cobra.Command {
	mergeCmd := &cobra.Command{
		Use:   "merge <base-uri> <update-file>...",
		Short: "Fold model updates into the next training round",
		Long: `Fold boosted-tree model updates into the global model and persist
the result as the next round under the base URI.

The latest completed round under the base URI is loaded first, so merging
resumes where the previous invocation stopped. Bagging mode splices each
update's tree into the shared forest; cyclic mode takes the last update as
the whole model.

Examples:
  runvault merge /jobs/xgb/rounds site-a.json site-b.json
  runvault merge /jobs/xgb/rounds handoff.json --mode cyclic`,
		Args: cobra.MinimumNArgs(2),
		RunE: runMerge,
	}
	addStoreFlags(mergeCmd)
	mergeCmd.Flags().StringVar(&mergeMode, "mode", string(ensemble.ModeBagging), "aggregation mode (bagging or cyclic)")
	return mergeCmd
}

func runMerge(cmd *cobra.Command, args []string) error {
	baseURI := args[0]
	if err := validateObjectURI(baseURI); err != nil {
		return err
	}

	agg, err := ensemble.NewAggregator(ensemble.Mode(mergeMode))
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	coord, err := ensemble.NewCoordinator(store, agg, baseURI)
	if err != nil {
		return err
	}

	state, err := coord.LoadState(cmd.Context())
	if err != nil {
		return err
	}

	updates := make([][]byte, 0, len(args)-1)
	for _, name := range args[1:] {
		update, err := os.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read update: %w", err)
		}
		updates = append(updates, update)
	}

	state, err = coord.AdvanceRound(cmd.Context(), state, updates)
	if err != nil {
		return err
	}

	fmt.Printf("Merged %d updates into round %d (%s).\n", len(updates), state.Round, coord.RoundURI(state.Round))
	return nil
}
