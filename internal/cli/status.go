package cli

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/basaltrun/slurmpipe/pkg/errors"
	"github.com/basaltrun/slurmpipe/pkg/store/fsstore"
	"github.com/basaltrun/slurmpipe/pkg/workpkg"
)

var statusCmd = &cobra.Command{
	Use:   "status [job]",
	Short: "Print per-job package counts for --run-dir",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func countsByState(packages []*workpkg.WorkPackage) map[workpkg.State]int {
	counts := map[workpkg.State]int{}
	for _, wp := range packages {
		counts[wp.State]++
	}
	return counts
}

func runStatus(cmd *cobra.Command, args []string) error {
	st := fsstore.Open(runDirFlag)
	defer st.Close()

	ctx := cmd.Context()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "JOB\tPENDING\tSUBMITTED\tRUNNING\tSUCCEEDED\tFAILED\tCANCELLED\tTOTAL")

	printJob := func(name string) error {
		packages, err := st.Get(ctx, name)
		if err != nil {
			return errors.WithClass(errors.ClassStore, errors.Wrap(err))
		}
		counts := countsByState(packages)
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n", name,
			counts[workpkg.Pending], counts[workpkg.Submitted]+counts[workpkg.Retryable],
			counts[workpkg.Running], counts[workpkg.Succeeded], counts[workpkg.Failed],
			counts[workpkg.Cancelled], len(packages))
		return nil
	}

	if len(args) == 1 {
		return printJob(args[0])
	}

	snapshot, err := st.Snapshot(ctx)
	if err != nil {
		return errors.WithClass(errors.ClassStore, errors.Wrap(err))
	}
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := printJob(name); err != nil {
			return err
		}
	}
	return nil
}
