package commands

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

func installListCmd(app *App) {
	listCmd := &cobra.Command{
		Use:   "list [key=value...]",
		Short: "Fetch the records matching filters",
		Long: `Fetch the records matching every key=value filter and render them.

Without filter, every record of the collection is fetched. Filter keys are id, name, description and price.`,
		Args: queryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseQuery(args)
			if err != nil {
				return err
			}

			slog.Info("Running list command", "query", q.Encode())
			p, err := app.newPipeline(cmd, io.Discard, nil)
			if err != nil {
				return err
			}
			return p.runOnce(cmd.Context(), p.records.Search(q))
		},
	}

	app.cmd.AddCommand(listCmd)
}
