package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export snapshots as JSON",
		Long:  "Export every live snapshot as a JSON array. Filter by hostname with --host.",
		Run:   runExport,
	}

	cmd.Flags().String("host", "", "Filter by hostname")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	hostname, _ := cmd.Flags().GetString("host")

	e, err := openEnv()
	if err != nil {
		exitErr("open", err)
	}
	defer e.Close()

	snapshots, err := e.store.ExportAll(cmd.Context(), hostname)
	if err != nil {
		exitErr("export", err)
	}
	printJSON(cmd, snapshots)
}
