package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	// Version information - set via ldflags during build
	// Example: go build -ldflags "-X github.com/airframesio/report-archiver/cmd.Version=1.2.3"
	Version = "dev"

	// signalContext is set by main() before Cobra initialization
	signalContext context.Context

	cfgFile   string
	debug     bool
	logFormat string

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true).
			Underline(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00D9FF"))

	logger *slog.Logger
)

// SetSignalContext stores the signal-aware context created in main()
func SetSignalContext(ctx context.Context) {
	signalContext = ctx
}

// commandContext returns the signal context, or a fresh one when main did not set it
func commandContext() (context.Context, context.CancelFunc) {
	if signalContext != nil {
		return context.WithCancel(signalContext)
	}
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// broadcastLogHandler wraps a slog handler and broadcasts logs to WebSocket clients
type broadcastLogHandler struct {
	handler slog.Handler
	hub     *progressHub
}

func newBroadcastLogHandler(handler slog.Handler, hub *progressHub) *broadcastLogHandler {
	return &broadcastLogHandler{handler: handler, hub: hub}
}

func (h *broadcastLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *broadcastLogHandler) Handle(ctx context.Context, r slog.Record) error {
	// Only the serve command has a hub; publish never blocks
	if h.hub != nil {
		h.hub.publishLog(LogMessage{
			Timestamp: r.Time.Format("2006-01-02 15:04:05"),
			Level:     r.Level.String(),
			Message:   r.Message,
		})
	}

	// Always write to original handler (this ensures logs still appear in console)
	return h.handler.Handle(ctx, r)
}

func (h *broadcastLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &broadcastLogHandler{handler: h.handler.WithAttrs(attrs), hub: h.hub}
}

func (h *broadcastLogHandler) WithGroup(name string) slog.Handler {
	return &broadcastLogHandler{handler: h.handler.WithGroup(name), hub: h.hub}
}

// textOnlyHandler is a custom slog handler that outputs human-readable text
// without key=value pairs, suitable for interactive terminal usage
type textOnlyHandler struct {
	opts   slog.HandlerOptions
	writer io.Writer
}

func newTextOnlyHandler(w io.Writer, opts *slog.HandlerOptions) *textOnlyHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &textOnlyHandler{
		opts:   *opts,
		writer: w,
	}
}

func (h *textOnlyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *textOnlyHandler) Handle(_ context.Context, r slog.Record) error {
	// Format: YYYY-MM-DD HH:MM:SS LEVEL message
	timestamp := r.Time.Format("2006-01-02 15:04:05")
	_, err := fmt.Fprintf(h.writer, "%s %s %s\n", timestamp, r.Level.String(), r.Message)
	return err
}

func (h *textOnlyHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

func (h *textOnlyHandler) WithGroup(_ string) slog.Handler {
	return h
}

// newLogger builds the slog logger for the given flags. hub may be nil.
func newLogger(w io.Writer, isDebug bool, format string, hub *progressHub) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if isDebug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "logfmt":
		// logfmt uses slog.TextHandler which outputs key=value pairs
		handler = slog.NewTextHandler(w, opts)
	default: // "text" or anything else
		handler = newTextOnlyHandler(w, opts)
	}

	return slog.New(newBroadcastLogHandler(handler, hub))
}

// initLogger initializes the package logger
func initLogger(isDebug bool, format string, hub *progressHub) {
	logger = newLogger(os.Stdout, isDebug, format, hub)
}

// bindFlags binds a command's flags to viper keys. It runs in PreRun so that
// commands sharing a key do not overwrite each other's bindings.
func bindFlags(flags *pflag.FlagSet, bindings map[string]string) {
	for key, flag := range bindings {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
}

var rootCmd = &cobra.Command{
	Use:     "report-archiver",
	Version: Version,
	Short:   "📦 Export cleaning reports and archive closed cycles to object storage",
	Long: titleStyle.Render("Report Archiver") + `

Serves the satisfaction and work-performance report exports for the
cleaning operations portal. An export can close the cycle: the report is
written once to object storage (S3 or GCS) and the exported rows are then
purged from PostgreSQL in batches.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(purgeResumeCmd)

	// Persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.report-archiver.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, logfmt, json)")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	// A missing .env file is normal outside development
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".report-archiver")
	}

	viper.SetEnvPrefix("ARCHIVER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && debug {
		if logger == nil {
			initLogger(debug, logFormat, nil)
		}
		logger.Debug(fmt.Sprintf("📄 Using config file: %s", viper.ConfigFileUsed()))
	}
}

// limitsUpdater is the part of the pipeline that follows config reloads
type limitsUpdater interface {
	UpdateLimits(maxMonths, batchSize int)
}

// reloadReportLimits applies report limits from viper when they validate
func reloadReportLimits(target limitsUpdater) error {
	limits := ReportConfig{
		MaxMonths:     viper.GetInt("report.max_months"),
		BatchSize:     viper.GetInt("report.batch_size"),
		PurgeTimeout:  viper.GetDuration("report.purge_timeout"),
		DefaultFormat: viper.GetString("report.default_format"),
	}
	if err := limits.Validate(); err != nil {
		return err
	}
	target.UpdateLimits(limits.MaxMonths, limits.BatchSize)
	return nil
}

// watchReportLimits reloads the span limit and batch size when the config
// file changes. Connection settings still need a restart.
func watchReportLimits(target limitsUpdater) {
	if viper.ConfigFileUsed() == "" {
		return
	}

	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if err := reloadReportLimits(target); err != nil {
			logger.Warn(fmt.Sprintf("⚠️  Ignoring config reload from %s: %v", e.Name, err))
			return
		}
		logger.Info(fmt.Sprintf("📄 Reloaded report limits from %s", e.Name))
	})
	viper.WatchConfig()
}
