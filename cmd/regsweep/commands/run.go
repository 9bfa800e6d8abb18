package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errDeletionFailures = errors.New("some locations could not be deleted")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one collection cycle",
	Long: `Build a fresh location index, walk every tag of every repository and delete
all locations of unreachable digests. Any read failure aborts the cycle before
anything is deleted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if RS == nil {
			return fmt.Errorf("app not initialized")
		}

		rep, err := RS.Collector.RunCycle(cmd.Context())
		printReport(cmd.OutOrStdout(), rep)
		if err != nil {
			return err
		}
		if len(rep.Failures) > 0 {
			return errDeletionFailures
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
