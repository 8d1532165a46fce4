package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/timeturner/internal/timekey"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "days",
		Short: "List days that hold snapshots",
		Args:  cobra.NoArgs,
		Run:   runDays,
	})
	RootCmd.AddCommand(&cobra.Command{
		Use:   "minutes <YYYYMMDD>",
		Short: "List minutes on a day that hold snapshots",
		Args:  cobra.ExactArgs(1),
		Run:   runMinutes,
	})
	RootCmd.AddCommand(&cobra.Command{
		Use:   "at <YYYYMMDD> <HHMM[SS]>",
		Short: "List snapshots in the minute starting at the given time",
		Args:  cobra.ExactArgs(2),
		Run:   runAt,
	})
	RootCmd.AddCommand(&cobra.Command{
		Use:   "get <YYYYMMDD> <HHMM[SS]> <hostname> <title>",
		Short: "Print the contents of one snapshot",
		Args:  cobra.ExactArgs(4),
		Run:   runGet,
	})
}

func runDays(cmd *cobra.Command, args []string) {
	e, err := openEnv()
	if err != nil {
		exitErr("open", err)
	}
	defer e.Close()

	days, err := e.store.ListDays(cmd.Context())
	if err != nil {
		exitErr("days", err)
	}
	printJSON(cmd, formatTimes(days, "2006-01-02"))
}

func runMinutes(cmd *cobra.Command, args []string) {
	e, err := openEnv()
	if err != nil {
		exitErr("open", err)
	}
	defer e.Close()

	loc, _ := e.cfg.TimeLocation()
	day, err := timekey.ParseDate(args[0], loc)
	if err != nil {
		exitErr("minutes", err)
	}

	minutes, err := e.store.ListMinutes(cmd.Context(), day)
	if err != nil {
		exitErr("minutes", err)
	}
	printJSON(cmd, formatTimes(minutes, "2006-01-02 15:04"))
}

func runAt(cmd *cobra.Command, args []string) {
	e, err := openEnv()
	if err != nil {
		exitErr("open", err)
	}
	defer e.Close()

	loc, _ := e.cfg.TimeLocation()
	ts, err := timekey.ParseDateTime(args[0], args[1], loc)
	if err != nil {
		exitErr("at", err)
	}

	infos, err := e.store.ListAt(cmd.Context(), ts)
	if err != nil {
		exitErr("at", err)
	}
	printJSON(cmd, infos)
}

func runGet(cmd *cobra.Command, args []string) {
	e, err := openEnv()
	if err != nil {
		exitErr("open", err)
	}
	defer e.Close()

	loc, _ := e.cfg.TimeLocation()
	ts, err := timekey.ParseDateTime(args[0], args[1], loc)
	if err != nil {
		exitErr("get", err)
	}

	contents, err := e.store.GetContents(cmd.Context(), ts, args[2], args[3])
	if err != nil {
		exitErr("get", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), contents)
}

func formatTimes(times []time.Time, layout string) []string {
	out := make([]string, len(times))
	for i, t := range times {
		out[i] = t.Format(layout)
	}
	return out
}
