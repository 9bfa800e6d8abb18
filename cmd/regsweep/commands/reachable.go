package commands

import (
	"fmt"
	"sort"

	"regsweep/pkg/walker"

	"github.com/spf13/cobra"
)

var reachableByTag bool

var reachableCmd = &cobra.Command{
	Use:   "reachable",
	Short: "Print every digest reachable from a tag",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if RS == nil {
			return fmt.Errorf("app not initialized")
		}

		_, res, err := RS.Collector.Mark(cmd.Context())
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if !reachableByTag {
			for _, d := range res.Reachable.Sorted() {
				fmt.Fprintln(w, d)
			}
			return nil
		}

		refs := make([]walker.TagRef, 0, len(res.Tags))
		for ref := range res.Tags {
			refs = append(refs, ref)
		}
		sort.Slice(refs, func(i, j int) bool { return refs[i].String() < refs[j].String() })
		for _, ref := range refs {
			fmt.Fprintf(w, "%s\n", ref)
			for _, d := range res.Tags[ref].Sorted() {
				fmt.Fprintf(w, "  %s\n", d)
			}
		}
		return nil
	},
}

func init() {
	reachableCmd.Flags().BoolVar(&reachableByTag, "by-tag", false, "group reachable digests by tag")
	rootCmd.AddCommand(reachableCmd)
}
