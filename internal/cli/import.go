package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rcliao/timeturner/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import snapshots from JSON",
		Long: "Import snapshots from JSON on stdin. Expects the format produced by export. " +
			"Snapshots that already exist are skipped.",
		Run: runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		exitErr("read stdin", err)
	}

	var snapshots []model.Snapshot
	if err := json.Unmarshal(data, &snapshots); err != nil {
		exitErr("parse json", err)
	}

	e, err := openEnv()
	if err != nil {
		exitErr("open", err)
	}
	defer e.Close()

	imported, skipped, err := e.store.Import(cmd.Context(), snapshots)
	if err != nil {
		exitErr("import", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"imported":%d,"skipped":%d}`+"\n", imported, skipped)
}
