package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/basaltrun/slurmpipe/pkg/errors"
	"github.com/basaltrun/slurmpipe/pkg/store/fsstore"
)

var stdoutCmd = &cobra.Command{
	Use:   "stdout <job> <index>",
	Short: "Print the stdout log of one work package",
	Args:  cobra.ExactArgs(2),
	RunE:  runStdout,
}

var stderrCmd = &cobra.Command{
	Use:   "stderr <job> <index>",
	Short: "Print the stderr log of one work package",
	Args:  cobra.ExactArgs(2),
	RunE:  runStderr,
}

func packageLog(cmd *cobra.Command, jobName, indexArg string, stderr bool) error {
	index, err := strconv.Atoi(indexArg)
	if err != nil {
		return errors.WithClass(errors.ClassConfig, errors.Wrap(err))
	}

	st := fsstore.Open(runDirFlag)
	defer st.Close()

	packages, err := st.Get(cmd.Context(), jobName)
	if err != nil {
		return errors.WithClass(errors.ClassStore, errors.Wrap(err))
	}
	for _, wp := range packages {
		if wp.Index != index {
			continue
		}
		path := wp.Logs.Stdout
		if stderr {
			path = wp.Logs.Stderr
		}
		if path == "" {
			return errors.WithClass(errors.ClassConfig, errors.New(fmt.Sprintf("%s[%d] has not been submitted yet", jobName, index)))
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return errors.WithClass(errors.ClassStore, errors.Wrap(err))
		}
		_, err = os.Stdout.Write(content)
		return err
	}
	return errors.WithClass(errors.ClassConfig, errors.New(fmt.Sprintf("no such work package: %s[%d]", jobName, index)))
}

func runStdout(cmd *cobra.Command, args []string) error {
	return packageLog(cmd, args[0], args[1], false)
}

func runStderr(cmd *cobra.Command, args []string) error {
	return packageLog(cmd, args[0], args[1], true)
}
