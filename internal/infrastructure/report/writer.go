package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/felixgeelhaar/logpulse/internal/application"
	"github.com/felixgeelhaar/logpulse/internal/domain"
)

// Writer renders analyses and history in every output format.
type Writer struct {
	// TopRows limits the rows per text table; 0 means 10.
	TopRows int
}

func (wr Writer) Write(w io.Writer, analysis *domain.Analysis, format application.OutputFormat) error {
	if analysis == nil || analysis.Snapshot == nil {
		return fmt.Errorf("nothing to render: analysis has no snapshot")
	}
	switch format {
	case application.OutputJSON:
		return writeJSON(w, analysis)
	case application.OutputHTML:
		return writeHTML(w, analysis)
	case application.OutputBrief:
		return writeBrief(w, analysis)
	case application.OutputText, "":
		return wr.writeText(w, analysis)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type palette struct {
	on       bool
	critical lipgloss.Style
	high     lipgloss.Style
	medium   lipgloss.Style
	good     lipgloss.Style
	muted    lipgloss.Style
	heading  lipgloss.Style
}

func newPalette(w io.Writer) palette {
	return palette{
		on:       colorEnabled(w),
		critical: lipgloss.NewStyle().Foreground(lipgloss.Color("#DC2626")).Bold(true),
		high:     lipgloss.NewStyle().Foreground(lipgloss.Color("#EA580C")).Bold(true),
		medium:   lipgloss.NewStyle().Foreground(lipgloss.Color("#CA8A04")),
		good:     lipgloss.NewStyle().Foreground(lipgloss.Color("#16A34A")),
		muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("#94A3B8")),
		heading:  lipgloss.NewStyle().Bold(true),
	}
}

func (p palette) render(s lipgloss.Style, text string) string {
	if !p.on {
		return text
	}
	return s.Render(text)
}

func (p palette) priority(pr domain.Priority) string {
	switch pr {
	case domain.PriorityCritical:
		return p.render(p.critical, string(pr))
	case domain.PriorityHigh:
		return p.render(p.high, string(pr))
	case domain.PriorityMedium:
		return p.render(p.medium, string(pr))
	default:
		return p.render(p.muted, string(pr))
	}
}

func (p palette) delta(v float64) string {
	s := fmt.Sprintf("%+.2f pp", v)
	switch {
	case v > 0:
		return p.render(p.critical, s)
	case v < 0:
		return p.render(p.good, s)
	}
	return s
}

func (wr Writer) limit() int {
	if wr.TopRows <= 0 {
		return 10
	}
	return wr.TopRows
}

func (wr Writer) writeText(w io.Writer, a *domain.Analysis) error {
	p := newPalette(w)
	snap := a.Snapshot
	ov := snap.Overall

	fmt.Fprintf(w, "%s %s (window %s)\n", p.render(p.heading, "Snapshot"), snap.ID, snap.TimeWindow)
	if snap.Source != "" {
		fmt.Fprintf(w, "Source: %s\n", snap.Source)
	}
	if a.PreviousSnapshotID != "" {
		fmt.Fprintf(w, "Compared with: %s\n", a.PreviousSnapshotID)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "Requests\tErrors\tError rate\t4xx\t5xx\tEndpoints\tSkipped rows")
	_, _ = fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%d\t%d\t%d\n",
		ov.TotalRequests, ov.TotalErrors, domain.NewPercentage(ov.OverallErrorRate),
		ov.ClientErrors4xx, ov.ServerErrors5xx, ov.UniqueEndpoints, snap.SkippedRows)
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(a.Alerts) > 0 {
		section(w, p, "Alerts")
		for _, al := range a.Alerts {
			sev := string(al.Severity)
			switch al.Severity {
			case domain.AlertCritical:
				sev = p.render(p.critical, sev)
			case domain.AlertWarning:
				sev = p.render(p.medium, sev)
			default:
				sev = p.render(p.good, sev)
			}
			fmt.Fprintf(w, "  [%s] %s\n", sev, al.Message)
		}
	}

	if err := wr.metricTable(w, p, "Critical endpoints", snap.Critical); err != nil {
		return err
	}
	if err := wr.metricTable(w, p, "Most used", snap.MostUsed); err != nil {
		return err
	}
	if err := wr.metricTable(w, p, "Most failed", snap.MostFailed); err != nil {
		return err
	}
	if err := wr.trendTable(w, p, a); err != nil {
		return err
	}
	if err := wr.recommendationTables(w, p, a); err != nil {
		return err
	}

	if len(a.PassErrors) > 0 {
		fmt.Fprintln(w, "\nWarnings:")
		for _, pe := range a.PassErrors {
			fmt.Fprintf(w, "  - %s: %s\n", pe.Pass, pe.Message)
		}
	}
	return nil
}

func section(w io.Writer, p palette, title string) {
	fmt.Fprintf(w, "\n%s\n", p.render(p.heading, title+":"))
}

func (wr Writer) metricTable(w io.Writer, p palette, title string, view []*domain.EndpointMetric) error {
	if len(view) == 0 {
		return nil
	}
	section(w, p, title)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "Endpoint\tMethod\tRequests\tErrors\tError rate\tAvg ms\tP95 ms\tClients")
	for i, m := range view {
		if i == wr.limit() {
			break
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\t%s\t%d\n",
			m.Endpoint, m.Method, m.TotalRequests, m.TotalErrors, m.ErrorPercentage(),
			optionalMs(m.AvgResponseTime), optionalMs(m.P95ResponseTime), m.UniqueClients)
	}
	return tw.Flush()
}

func optionalMs(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}

func (wr Writer) trendTable(w io.Writer, p palette, a *domain.Analysis) error {
	if !a.HasHistory() {
		section(w, p, "Trends")
		fmt.Fprintln(w, "  First snapshot: no previous data to compare.")
		return nil
	}
	s := a.TrendSummary
	section(w, p, "Trends")
	fmt.Fprintf(w, "  %d degrading, %d improving, %d stable, %d new\n", s.Degrading, s.Improving, s.Stable, s.New)

	var moving []domain.Trend
	for _, t := range a.Trends {
		if t.Direction() != domain.TrendStable {
			moving = append(moving, t)
		}
	}
	if len(moving) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "Endpoint\tPrevious\tCurrent\tChange\tDirection")
	for i, t := range moving {
		if i == wr.limit() {
			break
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			t.Endpoint, domain.NewPercentage(t.PreviousErrorRate), domain.NewPercentage(t.CurrentErrorRate),
			p.delta(t.ChangePercentage), t.Direction())
	}
	return tw.Flush()
}

func (wr Writer) recommendationTables(w io.Writer, p palette, a *domain.Analysis) error {
	if len(a.Prioritized) > 0 {
		section(w, p, "Prioritized tests")
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "Priority\tScore\tEndpoint\tSuggested tests")
		for i, r := range a.Prioritized {
			if i == wr.limit() {
				break
			}
			_, _ = fmt.Fprintf(tw, "%s\t%.1f\t%s %s\t%s\n",
				p.priority(r.Priority), r.PriorityScore, r.Method, r.Endpoint, strings.Join(r.SuggestedTests, "; "))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(a.RegressionRisks) > 0 {
		section(w, p, "Regression risks")
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "Priority\tScore\tEndpoint\tChange\tAction")
		for i, r := range a.RegressionRisks {
			if i == wr.limit() {
				break
			}
			_, _ = fmt.Fprintf(tw, "%s\t%.1f\t%s\t%s\t%s\n",
				p.priority(r.Priority), r.PriorityScore, r.Endpoint, p.delta(r.ChangePercentage), r.SuggestedAction)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(a.CoverageGaps) > 0 {
		section(w, p, "Coverage gaps")
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "Priority\tScore\tEndpoint\tStatus\tAction")
		for i, g := range a.CoverageGaps {
			if i == wr.limit() {
				break
			}
			_, _ = fmt.Fprintf(tw, "%s\t%.1f\t%s %s\t%s\t%s\n",
				p.priority(g.Priority), g.PriorityScore, g.Method, g.Endpoint, g.Status, g.SuggestedAction)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func colorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}

// writeBrief outputs a single-line summary for scripts and agents.
// Format: STATUS | X.XX% errors over N requests | C critical [| D degrading] [| top: endpoint (rate)]
func writeBrief(w io.Writer, a *domain.Analysis) error {
	snap := a.Snapshot
	status := "OK"
	switch {
	case len(snap.Critical) > 0:
		status = "CRITICAL"
	case a.TrendSummary.Degrading > 0:
		status = "DEGRADING"
	case snap.IsEmpty():
		status = "EMPTY"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s | %s errors over %d requests | %d critical",
		status, domain.NewPercentage(snap.Overall.OverallErrorRate), snap.Overall.TotalRequests, len(snap.Critical))
	if a.TrendSummary.Degrading > 0 {
		fmt.Fprintf(&sb, " | %d degrading", a.TrendSummary.Degrading)
	}
	if len(a.Prioritized) > 0 {
		top := a.Prioritized[0]
		fmt.Fprintf(&sb, " | top: %s %s (%s)", top.Method, top.Endpoint, top.Priority)
	}
	if len(a.PassErrors) > 0 {
		fmt.Fprintf(&sb, " | %d warnings", len(a.PassErrors))
	}
	sb.WriteString("\n")
	_, err := io.WriteString(w, sb.String())
	return err
}
