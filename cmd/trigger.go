package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/airframesio/report-archiver/cmd/formatters"
	"github.com/airframesio/report-archiver/cmd/report"
)

// Static errors for the export trigger
var (
	ErrServerURLRequired      = errors.New("server URL is required")
	ErrTokenRequired          = errors.New("bearer token is required")
	ErrTriggerFormat          = errors.New("format must be one of: csv, xlsx")
	ErrTriggerMaxMonths       = errors.New("max months must be >= 1")
	ErrExportSpanTooLong      = errors.New("date range is too long")
	ErrExportRejected         = errors.New("export rejected by server")
	ErrExportCancelled        = errors.New("export cancelled")
	ErrOutputDirNotWritable   = errors.New("output directory is not writable")
	ErrCloseCycleNotConfirmed = errors.New("--yes with --close-cycle also requires --confirm-close-cycle")
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true)

	failureStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFAA00")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Request a report export from a running server and save it",
	Long: `Request a satisfaction or work-performance export from a running server
and save the returned spreadsheet. With --close-cycle the server archives the
exported rows and then deletes them from the database.`,
	Example: `  report-archiver export --kind satisfaction --start 2024-01-01 --end 2024-03-31
  report-archiver export --kind work_performance --start 2024-01-01 --end 2024-01-31 --close-cycle
  report-archiver export --kind work_performance --start 2024-01-01 --end 2024-01-31 --close-cycle --yes --confirm-close-cycle`,
	PreRun: func(cmd *cobra.Command, _ []string) {
		bindFlags(cmd.Flags(), triggerFlagBindings)
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		return runExport()
	},
}

var triggerFlagBindings = map[string]string{
	"trigger.kind":        "kind",
	"trigger.start":       "start",
	"trigger.end":         "end",
	"trigger.close_cycle": "close-cycle",
	"trigger.format":      "format",
	"trigger.max_months":  "max-months",
	"trigger.server_url":  "server-url",
	"trigger.token":       "token",
	"trigger.out_dir":     "out-dir",
	"trigger.yes":         "yes",
	"trigger.timeout":     "timeout",

	"trigger.confirm_close_cycle": "confirm-close-cycle",
}

func init() {
	flags := exportCmd.Flags()
	flags.String("kind", string(report.KindSatisfaction), "report kind: satisfaction, work_performance")
	flags.String("start", "", "first day of the range (YYYY-MM-DD)")
	flags.String("end", "", "last day of the range (YYYY-MM-DD)")
	flags.Bool("close-cycle", false, "archive the exported rows and delete them from the database")
	flags.String("format", "", "artifact format: csv, xlsx (default: the server's default)")
	flags.Int("max-months", 6, "maximum span in months, checked before contacting the server")
	flags.String("server-url", "http://localhost:8080", "base URL of the report server")
	flags.String("token", "", "bearer token for the report server")
	flags.String("out-dir", ".", "directory the artifact is saved to")
	flags.BoolP("yes", "y", false, "skip the confirmation dialog")
	flags.Bool("confirm-close-cycle", false, "acknowledge the irreversible purge when --yes skips the dialog")
	flags.Duration("timeout", 10*time.Minute, "request timeout")
}

// TriggerConfig is the client-side export request
type TriggerConfig struct {
	Kind       string
	Start      string
	End        string
	CloseCycle bool
	Format     string
	MaxMonths  int
	ServerURL  string
	Token      string
	OutDir     string
	Yes        bool
	Timeout    time.Duration

	// ConfirmCloseCycle stands in for the dialog when Yes skips it
	ConfirmCloseCycle bool
}

func loadTriggerConfig() *TriggerConfig {
	return &TriggerConfig{
		Kind:       viper.GetString("trigger.kind"),
		Start:      viper.GetString("trigger.start"),
		End:        viper.GetString("trigger.end"),
		CloseCycle: viper.GetBool("trigger.close_cycle"),
		Format:     strings.ToLower(viper.GetString("trigger.format")),
		MaxMonths:  viper.GetInt("trigger.max_months"),
		ServerURL:  viper.GetString("trigger.server_url"),
		Token:      viper.GetString("trigger.token"),
		OutDir:     viper.GetString("trigger.out_dir"),
		Yes:        viper.GetBool("trigger.yes"),
		Timeout:    viper.GetDuration("trigger.timeout"),

		ConfirmCloseCycle: viper.GetBool("trigger.confirm_close_cycle"),
	}
}

// Validate checks the request locally and returns the parsed kind and range.
// Nothing here touches the network.
func (c *TriggerConfig) Validate() (report.Kind, report.DateRange, error) {
	kind, err := report.ParseKind(c.Kind)
	if err != nil {
		return "", report.DateRange{}, err
	}
	if c.Format != "" {
		if _, err := formatters.GetFormatter(c.Format); err != nil {
			return "", report.DateRange{}, fmt.Errorf("%w: '%s'", ErrTriggerFormat, c.Format)
		}
	}
	if c.MaxMonths < 1 {
		return "", report.DateRange{}, fmt.Errorf("%w, got %d", ErrTriggerMaxMonths, c.MaxMonths)
	}
	if c.Start == "" || c.End == "" {
		return "", report.DateRange{}, report.ErrRangeRequired
	}

	rng, err := report.RangeFromDays(c.Start, c.End)
	if err != nil {
		return "", report.DateRange{}, err
	}
	if err := rng.Validate(c.MaxMonths); err != nil {
		if errors.Is(err, report.ErrRangeTooLong) {
			return "", report.DateRange{}, fmt.Errorf("%w: %s", ErrExportSpanTooLong, report.MaxSpanMessage(c.MaxMonths))
		}
		return "", report.DateRange{}, err
	}

	if strings.TrimSpace(c.ServerURL) == "" {
		return "", report.DateRange{}, ErrServerURLRequired
	}
	if c.Token == "" {
		return "", report.DateRange{}, ErrTokenRequired
	}
	if c.CloseCycle && c.Yes && !c.ConfirmCloseCycle {
		return "", report.DateRange{}, ErrCloseCycleNotConfirmed
	}
	return kind, rng, nil
}

type exportRequest struct {
	Start      string `json:"start"`
	End        string `json:"end"`
	CloseCycle bool   `json:"closeCycle"`
	Format     string `json:"format,omitempty"`
}

type exportResponse struct {
	Body         []byte
	ContentType  string
	ArchiveKey   string
	InvocationID string
}

// exportClient calls the export endpoints of a report server
type exportClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newExportClient(baseURL, token string, timeout time.Duration) *exportClient {
	return &exportClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// Export posts one export request and returns the artifact
func (c *exportClient) Export(ctx context.Context, kind report.Kind, rng report.DateRange, closeCycle bool, format string) (*exportResponse, error) {
	payload, err := json.Marshal(exportRequest{
		Start:      rng.Start.Format(time.RFC3339),
		End:        rng.End.Format(time.RFC3339),
		CloseCycle: closeCycle,
		Format:     format,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+exportRoute(kind), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var failure struct {
			Error string `json:"error"`
		}
		message := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &failure) == nil && failure.Error != "" {
			message = failure.Error
		}
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("%w (HTTP %d): %s", ErrExportRejected, resp.StatusCode, message)
	}

	return &exportResponse{
		Body:         body,
		ContentType:  resp.Header.Get("Content-Type"),
		ArchiveKey:   resp.Header.Get("X-Archive-Key"),
		InvocationID: resp.Header.Get("X-Invocation-Id"),
	}, nil
}

// saveArtifact writes the body under dir and returns the full path
func saveArtifact(dir string, kind report.Kind, rng report.DateRange, resp *exportResponse) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %w", ErrOutputDirNotWritable, err)
	}
	name := report.DownloadFilename(kind.DownloadPrefix(), rng, formatters.ExtensionForContentType(resp.ContentType))
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, resp.Body, 0o644); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", target, err)
	}
	return target, nil
}

// exportJob is one confirmed export: request, then save
type exportJob struct {
	client     *exportClient
	kind       report.Kind
	rng        report.DateRange
	closeCycle bool
	format     string
	outDir     string
}

type exportOutcome struct {
	path       string
	archiveKey string
}

func (j *exportJob) run(ctx context.Context) (*exportOutcome, error) {
	resp, err := j.client.Export(ctx, j.kind, j.rng, j.closeCycle, j.format)
	if err != nil {
		return nil, err
	}
	target, err := saveArtifact(j.outDir, j.kind, j.rng, resp)
	if err != nil {
		return nil, err
	}
	return &exportOutcome{path: target, archiveKey: resp.ArchiveKey}, nil
}

func successLine(outcome *exportOutcome) string {
	line := successStyle.Render(fmt.Sprintf("✅ ดาวน์โหลดสำเร็จ: ไฟล์ \"%s\" ถูกบันทึกเรียบร้อยแล้ว", filepath.Base(outcome.path)))
	if outcome.archiveKey != "" {
		line += "\n" + infoStyle.Render("📦 Archived to "+outcome.archiveKey)
	}
	return line
}

func failureLine(err error) string {
	return failureStyle.Render("❌ ดาวน์โหลดไม่สำเร็จ: " + err.Error())
}

func runExport() error {
	config := loadTriggerConfig()
	initLogger(viper.GetBool("debug"), viper.GetString("log_format"), nil)

	kind, rng, err := config.Validate()
	if err != nil {
		if errors.Is(err, ErrExportSpanTooLong) {
			fmt.Println(warningStyle.Render("⚠️  ช่วงเวลาเกินกำหนด: " + report.MaxSpanMessage(config.MaxMonths)))
		}
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	job := &exportJob{
		client:     newExportClient(config.ServerURL, config.Token, config.Timeout),
		kind:       kind,
		rng:        rng,
		closeCycle: config.CloseCycle,
		format:     config.Format,
		outDir:     config.OutDir,
	}

	logger.Debug(fmt.Sprintf("Requesting %s export for %s to %s from %s",
		kind, config.Start, config.End, config.ServerURL))

	var outcome *exportOutcome
	if config.Yes {
		outcome, err = job.run(ctx)
	} else {
		outcome, err = confirmAndRun(ctx, job)
	}
	if errors.Is(err, ErrExportCancelled) {
		fmt.Println(helpStyle.Render("ยกเลิกการดาวน์โหลด"))
		return nil
	}
	if err != nil {
		fmt.Println(failureLine(err))
		return err
	}

	fmt.Println(successLine(outcome))
	return nil
}
