package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/airframesio/report-archiver/cmd/report"
)

var (
	promptStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	dangerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)
)

type confirmPhase int

const (
	phaseAsking confirmPhase = iota
	phaseRunning
	phaseFinished
)

type exportDoneMsg struct {
	outcome *exportOutcome
	err     error
}

// confirmModel asks the operator to confirm, then runs the export with a spinner
type confirmModel struct {
	ctx     context.Context
	job     *exportJob
	phase   confirmPhase
	spinner spinner.Model
	outcome *exportOutcome
	err     error
}

func newConfirmModel(ctx context.Context, job *exportJob) confirmModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))
	return confirmModel{ctx: ctx, job: job, spinner: s}
}

func (m confirmModel) Init() tea.Cmd {
	return nil
}

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	case spinner.TickMsg:
		if m.phase != phaseRunning {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case exportDoneMsg:
		m.phase = phaseFinished
		m.outcome = msg.outcome
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		// A running request keeps going server-side; only stop waiting for it
		m.phase = phaseFinished
		m.err = ErrExportCancelled
		return m, tea.Quit
	}
	if m.phase != phaseAsking {
		return m, nil
	}

	switch strings.ToLower(msg.String()) {
	case "y":
		m.phase = phaseRunning
		return m, tea.Batch(m.spinner.Tick, m.runJob())
	case "n", "esc", "q":
		m.phase = phaseFinished
		m.err = ErrExportCancelled
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) runJob() tea.Cmd {
	ctx, job := m.ctx, m.job
	return func() tea.Msg {
		outcome, err := job.run(ctx)
		return exportDoneMsg{outcome: outcome, err: err}
	}
}

// confirmationText is the dialog body: report name, Thai dates and, for a
// close-cycle, the deletion warning
func confirmationText(kind report.Kind, rng report.DateRange, closeCycle bool) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("ยืนยันการดาวน์โหลด?"))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "ต้องการดาวน์โหลด%s\n", kind.DownloadPrefix())
	fmt.Fprintf(&b, "%s ถึง %s\n",
		dateStyle.Render(report.ThaiReadableDate(rng.Start)),
		dateStyle.Render(report.ThaiReadableDate(rng.End)))
	b.WriteString("ใช่หรือไม่?")
	if closeCycle {
		b.WriteString("\n\n")
		b.WriteString(dangerStyle.Render("⚠️  ปิดรอบ: ข้อมูลในช่วงนี้จะถูกสำรองและลบออกจากระบบถาวร ไม่สามารถย้อนกลับได้"))
	}
	return b.String()
}

func (m confirmModel) View() string {
	switch m.phase {
	case phaseAsking:
		return promptStyle.Render(confirmationText(m.job.kind, m.job.rng, m.job.closeCycle)) +
			"\n" + helpStyle.Render("y: ใช่, ดาวน์โหลด • n: ยกเลิก") + "\n"
	case phaseRunning:
		label := "กำลังดาวน์โหลด..."
		if m.job.closeCycle {
			label = "กำลังดาวน์โหลดและปิดรอบ..."
		}
		return fmt.Sprintf("%s %s\n", m.spinner.View(), label)
	default:
		return ""
	}
}

// confirmAndRun shows the dialog and runs the job once the operator agrees
func confirmAndRun(ctx context.Context, job *exportJob) (*exportOutcome, error) {
	final, err := tea.NewProgram(newConfirmModel(ctx, job), tea.WithContext(ctx)).Run()
	if err != nil {
		return nil, err
	}
	m, ok := final.(confirmModel)
	if !ok || m.phase != phaseFinished {
		return nil, ErrExportCancelled
	}
	return m.outcome, m.err
}
