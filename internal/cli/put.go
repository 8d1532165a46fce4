package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/timeturner/internal/store"
	"github.com/rcliao/timeturner/internal/timekey"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put [file]",
		Short: "Store a snapshot",
		Long:  "Store a snapshot. Contents are read from the file argument or from stdin.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runPut,
	}

	cmd.Flags().String("host", "", "Originating hostname (default: this machine's hostname)")
	cmd.Flags().StringP("title", "t", "", "Snapshot title (required)")
	cmd.Flags().String("at", "", "Capture time as "+timekey.StampLayout+" (default: now)")

	cmd.MarkFlagRequired("title")

	RootCmd.AddCommand(cmd)
}

func runPut(cmd *cobra.Command, args []string) {
	hostname, _ := cmd.Flags().GetString("host")
	title, _ := cmd.Flags().GetString("title")
	at, _ := cmd.Flags().GetString("at")

	if hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			exitErr("hostname", err)
		}
		hostname = h
	}

	var raw []byte
	var err error
	if len(args) > 0 {
		raw, err = os.ReadFile(args[0])
	} else {
		raw, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		exitErr("read contents", err)
	}

	e, err := openEnv()
	if err != nil {
		exitErr("open", err)
	}
	defer e.Close()

	loc, _ := e.cfg.TimeLocation()
	ts := time.Now().In(loc)
	if at != "" {
		ts, err = timekey.ParseStamp(at, loc)
		if err != nil {
			exitErr("put", err)
		}
	}
	ts = ts.Truncate(time.Second)

	err = e.store.Add(cmd.Context(), ts, hostname, title, raw)
	if errors.Is(err, store.ErrDuplicate) {
		exitErr("conflict", err)
	}
	if err != nil {
		exitErr("put", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"timestamp":%q,"hostname":%q,"title":%q}`+"\n",
		ts.Format(time.RFC3339), hostname, title)
}
