// Package wizard is the interactive thresholds editor behind `logpulse init`.
package wizard

import (
	"fmt"
	"io"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/logpulse/internal/application"
	"github.com/felixgeelhaar/logpulse/internal/domain"
)

type (
	wizardState int

	initWizardModel struct {
		state     wizardState
		cfg       application.Config
		cursor    int
		confirmed bool
		aborted   bool
	}

	// field is one editable threshold.
	field struct {
		label    string
		step     float64
		min, max float64
		get      func(*domain.Thresholds) float64
		set      func(*domain.Thresholds, float64)
		format   string
	}
)

const (
	stateIntro wizardState = iota
	stateEdit
	stateConfirm
)

var fields = []field{
	{
		label: "Critical: minimum requests", step: 10, min: 0, max: math.MaxInt32, format: "%.0f",
		get: func(t *domain.Thresholds) float64 { return float64(t.CriticalMinRequests) },
		set: func(t *domain.Thresholds, v float64) { t.CriticalMinRequests = int(v) },
	},
	{
		label: "Critical: error rate", step: 0.5, min: 0, max: 100, format: "%.1f%%",
		get: func(t *domain.Thresholds) float64 { return t.CriticalErrorRate },
		set: func(t *domain.Thresholds, v float64) { t.CriticalErrorRate = v },
	},
	{
		label: "Degrading above", step: 1, min: 0, max: 100, format: "%+.0f pp",
		get: func(t *domain.Thresholds) float64 { return t.DegradingThreshold },
		set: func(t *domain.Thresholds, v float64) { t.DegradingThreshold = v },
	},
	{
		label: "Improving below", step: 1, min: -100, max: 0, format: "%+.0f pp",
		get: func(t *domain.Thresholds) float64 { return t.ImprovingThreshold },
		set: func(t *domain.Thresholds, v float64) { t.ImprovingThreshold = v },
	},
	{
		label: "Volume weight (error weight follows)", step: 0.1, min: 0, max: 1, format: "%.1f",
		get: func(t *domain.Thresholds) float64 { return t.VolumeWeight },
		set: func(t *domain.Thresholds, v float64) {
			t.VolumeWeight = domain.Round1(v)
			t.ErrorWeight = domain.Round1(1 - t.VolumeWeight)
		},
	},
	{
		label: "Coverage gap visibility (requests)", step: 10, min: 0, max: math.MaxInt32, format: "%.0f",
		get: func(t *domain.Thresholds) float64 { return float64(t.VisibilityThreshold) },
		set: func(t *domain.Thresholds, v float64) { t.VisibilityThreshold = int(v) },
	},
	{
		label: "Top N endpoints", step: 1, min: 1, max: 100, format: "%.0f",
		get: func(t *domain.Thresholds) float64 { return float64(t.TopN) },
		set: func(t *domain.Thresholds, v float64) { t.TopN = int(v) },
	},
}

// Run shows the wizard and returns the edited config and whether it was confirmed.
func Run(cfg application.Config, stdout io.Writer, stdin io.Reader) (application.Config, bool, error) {
	return runInitWizard(cfg, stdout, stdin)
}

func runInitWizard(cfg application.Config, stdout io.Writer, stdin io.Reader) (application.Config, bool, error) {
	model := newInitWizardModel(cfg)
	program := tea.NewProgram(model, tea.WithInput(stdin), tea.WithOutput(stdout))
	res, err := program.Run()
	if err != nil {
		return cfg, false, err
	}
	finalModel, ok := res.(*initWizardModel)
	if !ok {
		return cfg, false, fmt.Errorf("unexpected wizard state")
	}
	if finalModel.aborted || !finalModel.confirmed {
		return cfg, false, nil
	}
	return finalModel.cfg, true, nil
}

func newInitWizardModel(cfg application.Config) *initWizardModel {
	if cfg.Thresholds == (domain.Thresholds{}) {
		cfg.Thresholds = domain.DefaultThresholds()
	}
	return &initWizardModel{state: stateIntro, cfg: cfg}
}

func (m *initWizardModel) Init() tea.Cmd {
	return nil
}

func (m *initWizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.aborted = true
			return m, tea.Quit
		case "enter":
			switch m.state {
			case stateIntro:
				m.state = stateEdit
			case stateEdit:
				m.state = stateConfirm
			case stateConfirm:
				m.confirmed = true
				return m, tea.Quit
			}
		case "esc":
			if m.state == stateConfirm {
				m.state = stateEdit
			}
		case "up":
			if m.state == stateEdit {
				m.moveCursor(-1)
			}
		case "down":
			if m.state == stateEdit {
				m.moveCursor(1)
			}
		case "left", "-":
			if m.state == stateEdit {
				m.adjustSelection(-1)
			}
		case "right", "+":
			if m.state == stateEdit {
				m.adjustSelection(1)
			}
		}
	}
	return m, nil
}

func (m *initWizardModel) View() string {
	switch m.state {
	case stateIntro:
		return m.viewIntro()
	case stateEdit:
		return m.viewEdit()
	case stateConfirm:
		return m.viewConfirm()
	default:
		return ""
	}
}

func (m *initWizardModel) moveCursor(delta int) {
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor > len(fields)-1 {
		m.cursor = len(fields) - 1
	}
}

// adjustSelection moves the selected field by steps increments.
func (m *initWizardModel) adjustSelection(steps int) {
	f := fields[m.cursor]
	th := &m.cfg.Thresholds
	value := clamp(f.get(th)+float64(steps)*f.step, f.min, f.max)
	f.set(th, value)
}

func (m *initWizardModel) viewIntro() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nlogpulse init wizard\n\n")
	fmt.Fprintf(&b, "Review the thresholds that classify endpoints and rank recommendations.\n")
	fmt.Fprintf(&b, "Snapshots will be stored with the %s driver.\n\n", m.cfg.Storage.Driver)
	fmt.Fprintf(&b, "Press Enter to continue, or Ctrl+C to cancel.\n")
	return b.String()
}

func (m *initWizardModel) viewEdit() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nReview and adjust thresholds\n\n")
	fmt.Fprintf(&b, "Use ↑/↓ to move, ←/→ or +/- to change values.\n\n")
	m.writeFields(&b, true)
	fmt.Fprintf(&b, "\nEnter to continue, q to cancel.\n")
	return b.String()
}

func (m *initWizardModel) viewConfirm() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nReady to write configuration\n\n")
	m.writeFields(&b, false)
	if err := m.cfg.Thresholds.Validate(); err != nil {
		fmt.Fprintf(&b, "\nWarning: %v\n", err)
	}
	fmt.Fprintf(&b, "\nPress Enter to save, Esc to go back, q to cancel.\n")
	return b.String()
}

func (m *initWizardModel) writeFields(b *strings.Builder, withCursor bool) {
	th := m.cfg.Thresholds
	for i, f := range fields {
		prefix := "  "
		if withCursor && i == m.cursor {
			prefix = "> "
		}
		fmt.Fprintf(b, "%s%s: "+f.format+"\n", prefix, f.label, f.get(&th))
	}
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
