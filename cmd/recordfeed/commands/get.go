package commands

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

func installGetCmd(app *App) {
	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch one record by id",
		Long: `Fetch one record by id and render it.

The id is escaped as a single path segment of the base URL.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("Running get command", "id", args[0])
			return app.getRun(cmd, args[0])
		},
	}

	app.cmd.AddCommand(getCmd)
}

// getRun runs the get command.
func (a *App) getRun(cmd *cobra.Command, id string) error {
	// The failure is returned, not rendered.
	p, err := a.newPipeline(cmd, io.Discard, nil)
	if err != nil {
		return err
	}
	return p.runOnce(cmd.Context(), p.records.Load(id))
}
