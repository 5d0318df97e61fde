package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"figdesk/internal/figclient"
	"figdesk/internal/format"
	"figdesk/internal/model"
	"figdesk/internal/session"
	"figdesk/internal/snippets"
	"figdesk/internal/store"
	"figdesk/internal/tui"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type App struct {
	Server     string
	Format     string
	PrettyJSON bool
	LogLevel   string

	cfg *store.Config
	log *logrus.Logger
}

func NewRootCmd() *cobra.Command {
	// A missing .env is fine; existing env vars win over it.
	_ = godotenv.Load()

	app := &App{}

	cmd := &cobra.Command{
		Use:           "figdesk",
		Short:         "Browse and edit figures on a figure server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: strings.TrimSpace(`
  # Start the interactive grid
  figdesk

  # List figures, newest last
  figdesk ls --sort updated_date --format table

  # Replace a figure's code from a file
  figdesk code 12 --file plot.R
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive TUI.
			if len(args) == 0 {
				return runTUI(cmd, app)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.resolve(cmd)
	}

	cmd.PersistentFlags().StringVar(&app.Server, "server", envOr("FIGDESK_SERVER", ""), "Figure server root URL (default from config, then "+store.DefaultServer+")")
	cmd.PersistentFlags().StringVar(&app.Format, "format", envOr("FIGDESK_FORMAT", format.JSON), "Output format (json|table)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", envOr("FIGDESK_LOG_LEVEL", ""), "Log level (debug|info|warn|error)")

	cmd.AddCommand(newLsCmd(app))
	cmd.AddCommand(newShowCmd(app))
	cmd.AddCommand(newRenameCmd(app))
	cmd.AddCommand(newRmCmd(app))
	cmd.AddCommand(newCodeCmd(app))
	cmd.AddCommand(newCanvasCmd(app))
	cmd.AddCommand(newDataCmd(app))
	cmd.AddCommand(newDownloadCmd(app))
	cmd.AddCommand(newHistoryCmd(app))
	cmd.AddCommand(newConfigCmd(app))

	return cmd
}

// resolve loads settings: flag > env > config file > default.
func (app *App) resolve(cmd *cobra.Command) error {
	cfg, err := store.LoadConfig()
	if err != nil {
		return writeErr(cmd, err)
	}
	app.cfg = cfg

	if strings.TrimSpace(app.Server) == "" {
		app.Server = cfg.ServerOrDefault()
	}
	app.Format = strings.ToLower(strings.TrimSpace(app.Format))
	if !format.Valid(app.Format) {
		return writeErr(cmd, fmt.Errorf("unknown format: %s (want json|table)", app.Format))
	}
	if strings.TrimSpace(app.LogLevel) == "" {
		app.LogLevel = cfg.LogLevel
	}
	level := logrus.WarnLevel
	if v := strings.TrimSpace(app.LogLevel); v != "" {
		level, err = logrus.ParseLevel(v)
		if err != nil {
			return writeErr(cmd, err)
		}
	}

	app.log = logrus.New()
	app.log.SetOutput(cmd.ErrOrStderr())
	app.log.SetLevel(level)
	return nil
}

func (app *App) client(log logrus.FieldLogger) (*figclient.Client, error) {
	opts := []figclient.Option{figclient.WithLogger(log)}
	if d := app.cfg.Timeout(); d > 0 {
		opts = append(opts, figclient.WithTimeout(d))
	}
	return figclient.New(app.Server, opts...)
}

// openJournal returns nil (and a no-op close) when the journal is disabled.
func (app *App) openJournal(cmd *cobra.Command) (*store.Journal, func(), error) {
	path, ok, err := app.cfg.JournalPath()
	if err != nil || !ok {
		return nil, func() {}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, func() {}, err
	}
	j, err := store.OpenJournal(cmd.Context(), path)
	if err != nil {
		return nil, func() {}, err
	}
	return j, func() { _ = j.Close() }, nil
}

func (app *App) downloadDir() string {
	if d := strings.TrimSpace(app.cfg.DownloadDir); d != "" {
		return d
	}
	return "."
}

func runTUI(cmd *cobra.Command, app *App) error {
	ctx := cmd.Context()

	logPath, err := app.cfg.LogFileOrDefault()
	if err != nil {
		return writeErr(cmd, err)
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return writeErr(cmd, err)
	}
	lf, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer lf.Close()
	// The terminal belongs to the TUI; everything else goes to the file.
	app.log.SetOutput(lf)
	logrus.SetOutput(lf)

	client, err := app.client(app.log)
	if err != nil {
		return writeErr(cmd, err)
	}
	journal, closeJournal, err := app.openJournal(cmd)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer closeJournal()

	editor := app.cfg.EditorOrDefault()
	set := snippets.Default()
	if path := strings.TrimSpace(editor.Snippets); path != "" {
		loaded, err := snippets.Load(path)
		if err != nil {
			app.log.WithError(err).WithField("path", path).Warn("using built-in snippets")
		} else {
			set = loaded
			if err := set.Watch(ctx, path, nil); err != nil {
				app.log.WithError(err).WithField("path", path).Warn("snippet watch disabled")
			}
		}
	}

	state, err := store.LoadTUIState()
	if err != nil {
		app.log.WithError(err).Warn("ignoring saved tui state")
		state = &store.TUIState{}
	}
	sortKey := state.Sort
	if sortKey == "" {
		sortKey = model.SortByName
	}

	opts := tui.Options{
		Backend:     client,
		Logger:      app.log,
		Snippets:    set,
		Editor:      editor,
		Sort:        sortKey,
		Server:      app.Server,
		DownloadDir: app.downloadDir(),
		OnSort: func(k model.SortKey) {
			state.Sort = k
			if err := store.SaveTUIState(state); err != nil {
				app.log.WithError(err).Warn("save tui state")
			}
		},
	}
	if journal != nil {
		opts.Journal = journal
	}
	app.log.WithField("server", app.Server).Info("starting tui")
	return tui.Run(ctx, opts)
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// writeOut wraps JSON output in a {"data": ...} envelope; tables print v itself.
func writeOut(cmd *cobra.Command, app *App, v any) error {
	if app.Format == format.Table {
		return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
	}
	return format.Write(cmd.OutOrStdout(), map[string]any{"data": v}, format.JSON, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	var rep reportedError
	if !errors.As(err, &rep) {
		fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	}
	return err
}

func readAllFrom(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		return string(b), err
	}
	b, err := os.ReadFile(path)
	return string(b), err
}

// controllerFor builds a session controller with a headless surface.
func controllerFor(cmd *cobra.Command, app *App) (*headless, func(), error) {
	client, err := app.client(app.log)
	if err != nil {
		return nil, func() {}, err
	}
	journal, closeJournal, err := app.openJournal(cmd)
	if err != nil {
		app.log.WithError(err).Warn("journal unavailable; mutations are not recorded")
		journal, closeJournal = nil, func() {}
	}

	h := &headless{
		client:  client,
		surface: newHeadlessSurface(cmd.ErrOrStderr()),
		code:    &textBuffer{},
		data:    &textBuffer{},
	}
	session.ConfigureEditors(h.code, h.data, app.cfg.EditorOrDefault(), nil)

	opts := session.Options{Logger: app.log, Server: app.Server}
	if journal != nil {
		opts.Journal = journal
	}
	h.ctl = session.New(client, store.NewFigureStore(), h.surface, h.code, h.data, opts)
	return h, closeJournal, nil
}
