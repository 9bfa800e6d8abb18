package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"regsweep/pkg/index"
	"regsweep/pkg/report"
	"regsweep/pkg/types"
)

func printReport(w io.Writer, r *report.Report) {
	if r == nil {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	status := "done"
	switch {
	case r.Aborted:
		status = fmt.Sprintf("aborted in %s phase", r.Phase)
	case r.DryRun:
		status = "done (dry run, nothing deleted)"
	}

	fmt.Fprintf(tw, "Cycle:\t%s\n", r.ID)
	fmt.Fprintf(tw, "Status:\t%s\n", status)
	fmt.Fprintf(tw, "Started:\t%s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "Duration:\t%s\n", r.Duration().Round(time.Millisecond))
	if r.Aborted {
		fmt.Fprintf(tw, "Error:\t%s\n", r.Error)
		return
	}
	fmt.Fprintf(tw, "Digests:\t%d (%d locations)\n", r.Digests, r.Locations)
	fmt.Fprintf(tw, "Tags:\t%d\n", r.Tags)
	fmt.Fprintf(tw, "Reachable:\t%d\n", r.Reachable)
	fmt.Fprintf(tw, "Garbage:\t%d\n", r.Garbage)
	fmt.Fprintf(tw, "Deleted:\t%d locations\n", r.Deleted)
	if r.Protected > 0 {
		fmt.Fprintf(tw, "Protected:\t%d locations\n", r.Protected)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(tw, "Failed:\t%s\n", f)
	}
}

func printIndexSummary(w io.Writer, idx *index.Index) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	byKind := idx.CountByKind()
	fmt.Fprintf(tw, "Digests:\t%d\n", idx.Len())
	fmt.Fprintf(tw, "Locations:\t%d\n", idx.LocationCount())
	for _, k := range []types.LocationKind{types.Canonical, types.LayerLink, types.RevisionLink, types.TagIndexLink} {
		fmt.Fprintf(tw, "  %s:\t%d\n", k, byKind[k])
	}
	if err := idx.RepositoryErrors(); err != nil {
		fmt.Fprintf(tw, "Repository errors:\t%d\n", idx.RepositoryErrorCount())
	}
}

func printLocations(w io.Writer, d types.Digest, locs []types.BlobLocation) {
	fmt.Fprintln(w, d)
	for _, l := range locs {
		fmt.Fprintf(w, "  %-14s %s\n", l.Kind, l.Path)
	}
}
