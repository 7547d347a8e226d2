package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "computesample v%s\n", Version)
			fmt.Fprintln(w, "A GPU compute dispatch sample")
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Build: development")
			fmt.Fprintf(w, "Go version: %s (%s/%s)\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
