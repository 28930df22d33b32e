package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/felixgeelhaar/logpulse/internal/application"
	"github.com/felixgeelhaar/logpulse/internal/domain"
)

// WriteHistory renders the overall error rate of stored snapshots over time.
func (wr Writer) WriteHistory(w io.Writer, h application.HistoryResult, format application.OutputFormat) error {
	switch format {
	case application.OutputJSON:
		return writeJSON(w, h)
	case application.OutputHTML:
		return writeHistoryHTML(w, h)
	case application.OutputBrief:
		return writeHistoryBrief(w, h)
	case application.OutputText, "":
		return writeHistoryText(w, h)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func writeHistoryText(w io.Writer, h application.HistoryResult) error {
	s := h.Series
	if len(s.Points) == 0 {
		_, err := fmt.Fprintln(w, "No snapshots stored for this period.")
		return err
	}
	p := newPalette(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "Snapshot\tRequests\tError rate\tChange\tCritical")
	for i, pt := range s.Points {
		change := "-"
		if i > 0 {
			change = p.delta(pt.ErrorRate - s.Points[i-1].ErrorRate)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\n",
			pt.SnapshotID, pt.TotalRequests, domain.NewPercentage(pt.ErrorRate), change, pt.Critical)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nAverage %s, highest %s, lowest %s. Steps: %d worse, %d better, %d flat.\n",
		domain.NewPercentage(s.Average), domain.NewPercentage(s.Highest), domain.NewPercentage(s.Lowest),
		s.Worse, s.Better, s.Flat)
	return err
}

// writeHistoryBrief: N snapshots | avg X.XX% | latest X.XX% | W worse, B better
func writeHistoryBrief(w io.Writer, h application.HistoryResult) error {
	s := h.Series
	if len(s.Points) == 0 {
		_, err := fmt.Fprintln(w, "0 snapshots")
		return err
	}
	latest := s.Points[len(s.Points)-1]
	_, err := fmt.Fprintf(w, "%d snapshots | avg %s | latest %s | %d worse, %d better\n",
		len(s.Points), domain.NewPercentage(s.Average), domain.NewPercentage(latest.ErrorRate), s.Worse, s.Better)
	return err
}
