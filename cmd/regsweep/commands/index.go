package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var indexList bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the location index and print it",
	Long:  `Scan blobs/ and repositories/ and show where every digest is stored. Nothing is deleted.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if RS == nil {
			return fmt.Errorf("app not initialized")
		}

		idx, err := RS.Collector.Index(cmd.Context())
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if indexList {
			for _, d := range idx.Digests() {
				printLocations(w, d, idx.Locations(d))
			}
			return nil
		}
		printIndexSummary(w, idx)
		return nil
	},
}

func init() {
	indexCmd.Flags().BoolVarP(&indexList, "list", "l", false, "list every digest with its locations")
	rootCmd.AddCommand(indexCmd)
}
