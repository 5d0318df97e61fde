package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"figdesk/internal/format"
	"figdesk/internal/model"
	"figdesk/internal/session"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newLsCmd(app *App) *cobra.Command {
	var sortBy string

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List figures in grid order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := model.ParseSortKey(sortBy)
			if err != nil {
				return writeErr(cmd, err)
			}
			h, done, err := controllerFor(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()
			if err := h.refresh(cmd.Context()); err != nil {
				return writeErr(cmd, err)
			}
			out := figureList{}
			for _, f := range h.ctl.Store().Sorted(key) {
				out = append(out, h.view(f, false))
			}
			return writeOut(cmd, app, out)
		},
	}
	cmd.Flags().StringVar(&sortBy, "sort", string(model.SortByName), "Sort key (name|updated_date)")
	return cmd
}

func newShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <figure-id>",
		Short: "Show one figure, including its code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, done, err := controllerFor(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()
			if err := h.open(cmd.Context(), args[0]); err != nil {
				return writeErr(cmd, err)
			}
			f, err := h.current()
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, h.view(f, true))
		},
	}
}

func newRenameCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <figure-id> <new-name>",
		Short: "Rename a figure",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, done, err := controllerFor(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()
			if err := h.open(ctx, args[0]); err != nil {
				return writeErr(cmd, err)
			}
			op, err := begun(h.ctl.BeginRename(args[1], true))
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := h.do(ctx, op); err != nil {
				return writeErr(cmd, err)
			}
			f, err := h.current()
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, h.view(f, false))
		},
	}
}

func newRmCmd(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "rm <figure-id>",
		Short: "Delete a figure from the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, done, err := controllerFor(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()
			if err := h.open(ctx, args[0]); err != nil {
				return writeErr(cmd, err)
			}
			f, err := h.current()
			if err != nil {
				return writeErr(cmd, err)
			}

			confirmed := yes
			if !confirmed {
				confirmed, err = confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), fmt.Sprintf("Delete %q? This cannot be undone. [y/N] ", f.Name))
				if err != nil {
					return writeErr(cmd, err)
				}
			}
			op, err := h.ctl.BeginDelete(confirmed)
			if err != nil {
				return writeErr(cmd, err)
			}
			if op.None() {
				return writeOut(cmd, app, deletedView{ID: f.ID, Name: f.Name})
			}
			if err := h.do(ctx, op); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, deletedView{ID: f.ID, Name: f.Name, Deleted: true})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Delete without asking")
	return cmd
}

// confirm reads one answer line; anything but y/yes declines.
func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func newCodeCmd(app *App) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "code <figure-id>",
		Short: "Replace a figure's code and re-render it",
		Example: strings.TrimSpace(`
  figdesk code 12 --file plot.R
  cat plot.R | figdesk code 12 --file -
`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if strings.TrimSpace(file) == "" {
				return writeErr(cmd, errors.New("missing --file (use - for stdin)"))
			}
			code, err := readAllFrom(cmd, file)
			if err != nil {
				return writeErr(cmd, err)
			}

			h, done, err := controllerFor(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()
			if err := h.open(ctx, args[0]); err != nil {
				return writeErr(cmd, err)
			}
			h.code.SetValue(code, session.CursorEnd)
			op, err := h.ctl.BeginCodeUpdate()
			if err != nil {
				return writeErr(cmd, err)
			}
			if op.None() {
				return writeErr(cmd, errors.New("code is empty; nothing sent"))
			}
			if err := h.do(ctx, op); err != nil {
				return writeErr(cmd, err)
			}
			f, err := h.current()
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, h.view(f, true))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read code from a file (- for stdin)")
	return cmd
}

func newCanvasCmd(app *App) *cobra.Command {
	var (
		height float64
		width  float64
		dpi    int
		units  string
	)

	cmd := &cobra.Command{
		Use:   "canvas <figure-id>",
		Short: "Change a figure's canvas; unset flags keep the current values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, done, err := controllerFor(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()
			if err := h.open(ctx, args[0]); err != nil {
				return writeErr(cmd, err)
			}

			cv := h.ctl.Fields().Canvas
			flags := cmd.Flags()
			if flags.Changed("height") {
				cv.Height = height
			}
			if flags.Changed("width") {
				cv.Width = width
			}
			if flags.Changed("dpi") {
				cv.DPI = dpi
			}
			if flags.Changed("units") {
				cv.Units = model.Units(strings.TrimSpace(units))
			}

			op, err := begun(h.ctl.BeginCanvas(cv))
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := h.do(ctx, op); err != nil {
				return writeErr(cmd, err)
			}
			f, err := h.current()
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, h.view(f, false))
		},
	}
	cmd.Flags().Float64Var(&height, "height", 0, "Canvas height")
	cmd.Flags().Float64Var(&width, "width", 0, "Canvas width")
	cmd.Flags().IntVar(&dpi, "dpi", 0, "Resolution in dots per inch")
	cmd.Flags().StringVar(&units, "units", "", "Units (in|cm|mm|px)")
	return cmd
}

func newDataCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "data <figure-id>",
		Short: "Print the data behind a figure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, done, err := controllerFor(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()
			if err := h.open(ctx, args[0]); err != nil {
				return writeErr(cmd, err)
			}
			op, err := h.ctl.BeginData()
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := h.do(ctx, op); err != nil {
				return writeErr(cmd, err)
			}
			id, _ := h.ctl.Current()
			if app.Format == format.Table {
				// The server text is already a table.
				_, err := io.WriteString(cmd.OutOrStdout(), strings.TrimRight(h.data.Value(), "\n")+"\n")
				return err
			}
			return writeOut(cmd, app, dataView{ID: id, Text: h.data.Value()})
		},
	}
}

func newDownloadCmd(app *App) *cobra.Command {
	var (
		data bool
		pdf  bool
		xlsx bool
		out  string
	)

	cmd := &cobra.Command{
		Use:   "download <figure-id>",
		Short: "Download a figure's data (csv/xlsx) and/or pdf",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if xlsx {
				data = true
			}
			if !data && !pdf {
				data, pdf = true, true
			}
			dir := out
			if strings.TrimSpace(dir) == "" {
				dir = app.downloadDir()
			}

			h, done, err := controllerFor(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()
			if err := h.open(ctx, args[0]); err != nil {
				return writeErr(cmd, err)
			}

			var ops []session.Op
			if data {
				op, err := h.ctl.BeginDownload(session.DownloadData, dir, xlsx)
				if err != nil {
					return writeErr(cmd, err)
				}
				ops = append(ops, op)
			}
			if pdf {
				op, err := h.ctl.BeginDownload(session.DownloadPDF, dir, false)
				if err != nil {
					return writeErr(cmd, err)
				}
				ops = append(ops, op)
			}

			// Fetch in parallel; Apply stays on this goroutine.
			results := make([]session.Result, len(ops))
			g, gctx := errgroup.WithContext(ctx)
			for i, op := range ops {
				g.Go(func() error {
					results[i] = h.ctl.Run(gctx, op)
					return results[i].Err
				})
			}
			_ = g.Wait()

			var errs []error
			view := downloadView{ID: ops[0].Ticket.FigureID}
			for _, r := range results {
				if _, err := h.ctl.Apply(ctx, r); err != nil {
					errs = append(errs, err)
					continue
				}
				view.Paths = append(view.Paths, r.Paths...)
			}
			if err := errors.Join(errs...); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, view)
		},
	}
	cmd.Flags().BoolVar(&data, "data", false, "Download the data as csv")
	cmd.Flags().BoolVar(&pdf, "pdf", false, "Download the rendered pdf")
	cmd.Flags().BoolVar(&xlsx, "xlsx", false, "Also convert the data to an xlsx workbook (implies --data)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Target directory (default from config, then .)")
	return cmd
}
