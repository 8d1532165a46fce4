package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	e, err := openEnv()
	if err != nil {
		exitErr("open", err)
	}
	defer e.Close()

	stats, err := e.store.Stats(cmd.Context(), e.cfg.Database.Path)
	if err != nil {
		exitErr("stats", err)
	}
	printJSON(cmd, stats)
}
