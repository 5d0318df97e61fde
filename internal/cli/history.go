package cli

import (
	"errors"
	"strings"

	"figdesk/internal/model"
	"figdesk/internal/store"

	"github.com/spf13/cobra"
)

func newHistoryCmd(app *App) *cobra.Command {
	var (
		figure string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show confirmed edits from the local journal (newest first)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, done, err := app.openJournal(cmd)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()
			if j == nil {
				return writeErr(cmd, errors.New("journal is disabled (config key: journal)"))
			}

			var es []store.Entry
			if id := strings.TrimSpace(figure); id != "" {
				es, err = j.ForFigure(cmd.Context(), model.FigureID(id), limit)
			} else {
				es, err = j.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, entryList(es))
		},
	}
	cmd.Flags().StringVar(&figure, "figure", "", "Only entries for this figure id")
	cmd.Flags().IntVar(&limit, "limit", 20, "Max entries to return")
	return cmd
}
