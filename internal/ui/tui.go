package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer shows build progress in a bubbletea program.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *buildModel
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails when output is not a
// TTY; callers fall back to the plain renderer.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	model := newBuildModel()
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{
		cfg:   cfg,
		model: model,
		done:  make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	var opts []tea.ProgramOption
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(progressMsg(event))
	}
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(errorMsg(event))
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Quit()
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
			// Don't hang the process on an unresponsive terminal.
		}
	}
	return nil
}

var _ Renderer = (*TUIRenderer)(nil)

// Message types for bubbletea.
type progressMsg ProgressEvent
type errorMsg ErrorEvent
type completeMsg CompletionStats

// buildModel is the bubbletea model for the index build.
type buildModel struct {
	styles      Styles
	spinner     spinner.Model
	progressBar progress.Model

	width     int
	stage     Stage
	current   int
	total     int
	document  string
	errCount  int
	warnCount int
	lastErr   string

	quitting bool
	complete bool
	stats    CompletionStats
}

func newBuildModel() *buildModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorCyan))

	p := progress.New(
		progress.WithSolidFill(ColorCyan),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)

	return &buildModel{
		styles:      DefaultStyles(),
		spinner:     s,
		progressBar: p,
		width:       80,
	}
}

// Init implements tea.Model.
func (m *buildModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *buildModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = msg.Width - 20
		if m.progressBar.Width < 20 {
			m.progressBar.Width = 20
		}

	case progressMsg:
		m.stage = msg.Stage
		m.current = msg.Current
		m.total = msg.Total
		m.document = msg.Document
		return m, nil

	case errorMsg:
		if msg.IsWarn {
			m.warnCount++
		} else {
			m.errCount++
		}
		m.lastErr = fmt.Sprintf("%s: %v", msg.Document, msg.Err)
		return m, nil

	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m *buildModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}
	if m.complete {
		return m.renderComplete()
	}

	var lines []string
	lines = append(lines, m.renderStages())
	lines = append(lines, m.renderProgress())
	if m.document != "" {
		lines = append(lines, m.styles.Dim.Render(truncate(m.document, m.width-4)))
	}
	if m.errCount > 0 || m.warnCount > 0 {
		lines = append(lines, m.renderStatus())
	}
	lines = append(lines, m.styles.Dim.Render("q to quit"))

	return strings.Join(lines, "\n") + "\n"
}

func (m *buildModel) renderStages() string {
	stages := []Stage{StageCrawling, StageIndexing, StageSaving}

	var parts []string
	for _, s := range stages {
		var icon string
		var style lipgloss.Style
		switch {
		case s < m.stage:
			icon = "●"
			style = m.styles.Success
		case s == m.stage:
			icon = m.spinner.View()
			style = m.styles.Active
		default:
			icon = "○"
			style = m.styles.Dim
		}
		parts = append(parts, style.Render(icon+" "+s.String()))
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *buildModel) renderProgress() string {
	if m.total == 0 {
		return fmt.Sprintf("%s %s...", m.spinner.View(), m.stage.String())
	}

	percent := float64(m.current) / float64(m.total)
	bar := m.progressBar.ViewAs(percent)
	count := m.styles.Label.Render(fmt.Sprintf("%d / %d documents", m.current, m.total))
	return fmt.Sprintf("%s %3.0f%%\n%s", bar, percent*100, count)
}

func (m *buildModel) renderStatus() string {
	var parts []string
	if m.errCount > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("✗ %d errors", m.errCount)))
	}
	if m.warnCount > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", m.warnCount)))
	}
	if m.lastErr != "" {
		parts = append(parts, m.styles.Dim.Render(truncate(m.lastErr, m.width/2)))
	}
	return strings.Join(parts, m.styles.Dim.Render("  │  "))
}

func (m *buildModel) renderComplete() string {
	var lines []string
	lines = append(lines, m.styles.Success.Render("✓ Index build complete"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("%s %s",
		m.styles.Label.Render("Documents:"), m.styles.Active.Render(fmt.Sprintf("%d", m.stats.Documents))))
	lines = append(lines, fmt.Sprintf("%s    %s",
		m.styles.Label.Render("Chunks:"), m.styles.Active.Render(fmt.Sprintf("%d", m.stats.Chunks))))
	lines = append(lines, fmt.Sprintf("%s  %s",
		m.styles.Label.Render("Duration:"), m.styles.Active.Render(m.stats.Duration.Round(100*time.Millisecond).String())))
	if m.stats.Skipped > 0 {
		lines = append(lines, fmt.Sprintf("%s   %s",
			m.styles.Label.Render("Skipped:"), m.styles.Label.Render(fmt.Sprintf("%d up to date", m.stats.Skipped))))
	}
	if m.stats.Errors > 0 {
		lines = append(lines, "")
		lines = append(lines, m.styles.Error.Render(fmt.Sprintf("✗ %d errors", m.stats.Errors)))
	}

	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(1, 2)

	return panel.Render(strings.Join(lines, "\n")) + "\n"
}

func truncate(s string, max int) string {
	if max < 4 {
		max = 4
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return "..." + string(runes[len(runes)-max+3:])
}
