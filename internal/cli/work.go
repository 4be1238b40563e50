package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/basaltrun/slurmpipe/pkg/errors"
	"github.com/basaltrun/slurmpipe/pkg/store/fsstore"
)

var workCmd = &cobra.Command{
	Use:   "work <job>",
	Short: "List every work package belonging to a job, one per line",
	Args:  cobra.ExactArgs(1),
	RunE:  runWork,
}

func runWork(cmd *cobra.Command, args []string) error {
	st := fsstore.Open(runDirFlag)
	defer st.Close()

	packages, err := st.Get(cmd.Context(), args[0])
	if err != nil {
		return errors.WithClass(errors.ClassStore, errors.Wrap(err))
	}
	if len(packages) == 0 {
		return errors.WithClass(errors.ClassConfig, errors.New("unknown job: "+args[0]))
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "INDEX\tSTATE\tATTEMPT\tARRAY_JOB_ID\tTASK_ID")
	for _, wp := range packages {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%d\n", wp.Index, wp.State, wp.Attempt, wp.External.ArrayJobID, wp.External.TaskID)
	}
	return nil
}
