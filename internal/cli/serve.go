package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/timeturner/internal/server"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the snapshot browser and upload endpoint",
		Run:   runServe,
	}

	cmd.Flags().StringP("listen", "l", "", "Listen address (default: server.listen from config)")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	listen, _ := cmd.Flags().GetString("listen")

	e, err := openEnv()
	if err != nil {
		exitErr("open", err)
	}
	defer e.Close()

	if listen != "" {
		e.cfg.Server.Listen = listen
	}
	loc, _ := e.cfg.TimeLocation()

	srv, err := server.New(e.store,
		server.WithLocation(loc),
		server.WithLogger(e.logger.Named("http")))
	if err != nil {
		exitErr("build server", err)
	}

	if err := srv.Run(cmd.Context(), e.cfg.Server); err != nil {
		exitErr("serve", err)
	}
}
