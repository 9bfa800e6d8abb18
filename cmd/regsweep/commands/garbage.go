package commands

import (
	"fmt"

	"regsweep/pkg/sweep"

	"github.com/spf13/cobra"
)

var garbageCmd = &cobra.Command{
	Use:   "garbage",
	Short: "Print unreachable digests and the locations that a cycle would delete",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if RS == nil {
			return fmt.Errorf("app not initialized")
		}

		idx, res, err := RS.Collector.Mark(cmd.Context())
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		garbage := sweep.Garbage(idx, res.Reachable)
		for _, d := range garbage {
			printLocations(w, d, idx.Locations(d))
		}
		fmt.Fprintf(w, "\n%d of %d digests are unreachable\n", len(garbage), idx.Len())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(garbageCmd)
}
