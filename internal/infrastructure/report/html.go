package report

import (
	"fmt"
	"html/template"
	"io"

	"github.com/felixgeelhaar/logpulse/internal/application"
	"github.com/felixgeelhaar/logpulse/internal/domain"
)

const htmlStyle = `
        :root {
            --good: #16A34A;
            --critical: #DC2626;
            --high: #EA580C;
            --medium: #CA8A04;
            --bg: #0f172a;
            --card: #1e293b;
            --text: #f8fafc;
            --muted: #94a3b8;
            --border: #334155;
        }
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, sans-serif;
            background: var(--bg);
            color: var(--text);
            line-height: 1.6;
            padding: 2rem;
        }
        .container { max-width: 1200px; margin: 0 auto; }
        h1 { font-size: 2rem; margin-bottom: 0.5rem; font-weight: 600; }
        .timestamp { color: var(--muted); font-size: 0.875rem; margin-bottom: 2rem; }
        .summary { display: flex; flex-wrap: wrap; gap: 1rem; margin-bottom: 2rem; }
        .summary-card {
            background: var(--card);
            border-radius: 0.5rem;
            padding: 1rem 1.5rem;
            border: 1px solid var(--border);
        }
        .summary-card.good { border-left: 4px solid var(--good); }
        .summary-card.critical { border-left: 4px solid var(--critical); }
        .summary-label {
            font-size: 0.75rem;
            text-transform: uppercase;
            color: var(--muted);
            letter-spacing: 0.05em;
        }
        .summary-value { font-size: 1.5rem; font-weight: 600; }
        table {
            width: 100%;
            border-collapse: collapse;
            background: var(--card);
            border-radius: 0.5rem;
            overflow: hidden;
            margin-bottom: 2rem;
        }
        th, td { padding: 0.75rem 1rem; text-align: left; border-bottom: 1px solid var(--border); }
        th {
            background: rgba(0,0,0,0.2);
            font-weight: 600;
            font-size: 0.75rem;
            text-transform: uppercase;
            letter-spacing: 0.05em;
            color: var(--muted);
        }
        tr:last-child td { border-bottom: none; }
        .badge {
            display: inline-block;
            padding: 0.25rem 0.5rem;
            border-radius: 0.25rem;
            font-size: 0.75rem;
            font-weight: 600;
        }
        .badge.critical { background: rgba(220, 38, 38, 0.2); color: var(--critical); }
        .badge.high { background: rgba(234, 88, 12, 0.2); color: var(--high); }
        .badge.medium, .badge.warning { background: rgba(202, 138, 4, 0.2); color: var(--medium); }
        .badge.low, .badge.info { background: rgba(22, 163, 74, 0.2); color: var(--good); }
        .up { color: var(--critical); }
        .down { color: var(--good); }
        .section-title { font-size: 1.25rem; margin-bottom: 1rem; font-weight: 600; }
        .warnings {
            background: rgba(202, 138, 4, 0.1);
            border: 1px solid rgba(202, 138, 4, 0.3);
            border-radius: 0.5rem;
            padding: 1rem;
            margin-bottom: 2rem;
        }
        .warnings h3 { color: var(--medium); font-size: 0.875rem; text-transform: uppercase; margin-bottom: 0.5rem; }
        .warnings ul { list-style: none; color: var(--muted); }
`

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>API Error Analysis {{.Snapshot.ID}}</title>
    <style>{{style}}</style>
</head>
<body>
    <div class="container">
        <h1>API Error Analysis</h1>
        <p class="timestamp">Snapshot {{.Snapshot.ID}} &middot; window {{.Snapshot.TimeWindow}} &middot; generated {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}{{if .PreviousSnapshotID}} &middot; compared with {{.PreviousSnapshotID}}{{end}}</p>

        <div class="summary">
            <div class="summary-card {{if .Snapshot.Critical}}critical{{else}}good{{end}}">
                <div class="summary-label">Error rate</div>
                <div class="summary-value">{{pct .Snapshot.Overall.OverallErrorRate}}</div>
            </div>
            <div class="summary-card">
                <div class="summary-label">Requests</div>
                <div class="summary-value">{{.Snapshot.Overall.TotalRequests}}</div>
            </div>
            <div class="summary-card">
                <div class="summary-label">Endpoints</div>
                <div class="summary-value">{{.Snapshot.Overall.UniqueEndpoints}}</div>
            </div>
            <div class="summary-card">
                <div class="summary-label">Critical</div>
                <div class="summary-value">{{len .Snapshot.Critical}}</div>
            </div>
            {{if .HasHistory}}
            <div class="summary-card">
                <div class="summary-label">Degrading</div>
                <div class="summary-value">{{.TrendSummary.Degrading}}</div>
            </div>
            {{end}}
        </div>

        {{if .PassErrors}}
        <div class="warnings">
            <h3>Warnings</h3>
            <ul>
                {{range .PassErrors}}<li>{{.Pass}}: {{.Message}}</li>{{end}}
            </ul>
        </div>
        {{end}}

        {{if .Alerts}}
        <h2 class="section-title">Alerts</h2>
        <table>
            <thead><tr><th>Severity</th><th>Title</th><th>Detail</th></tr></thead>
            <tbody>
                {{range .Alerts}}
                <tr><td><span class="badge {{.Severity}}">{{.Severity}}</span></td><td>{{.Title}}</td><td>{{.Message}}</td></tr>
                {{end}}
            </tbody>
        </table>
        {{end}}

        {{if .Snapshot.MostUsed}}
        <h2 class="section-title">Most used endpoints</h2>
        <table>
            <thead><tr><th>Endpoint</th><th>Method</th><th>Requests</th><th>Errors</th><th>Error rate</th><th>Avg ms</th><th>P95 ms</th></tr></thead>
            <tbody>
                {{range .Snapshot.MostUsed}}
                <tr><td>{{.Endpoint}}</td><td>{{.Method}}</td><td>{{.TotalRequests}}</td><td>{{.TotalErrors}}</td><td>{{pct .ErrorRate}}</td><td>{{ms .AvgResponseTime}}</td><td>{{ms .P95ResponseTime}}</td></tr>
                {{end}}
            </tbody>
        </table>
        {{end}}

        {{if .Trends}}
        <h2 class="section-title">Trends</h2>
        <table>
            <thead><tr><th>Endpoint</th><th>Previous</th><th>Current</th><th>Change</th><th>Direction</th></tr></thead>
            <tbody>
                {{range .Trends}}
                <tr><td>{{.Endpoint}}</td><td>{{pct .PreviousErrorRate}}</td><td>{{pct .CurrentErrorRate}}</td><td class="{{if gt .ChangePercentage 0.0}}up{{else if lt .ChangePercentage 0.0}}down{{end}}">{{printf "%+.2f" .ChangePercentage}} pp</td><td>{{.Direction}}</td></tr>
                {{end}}
            </tbody>
        </table>
        {{end}}

        {{if .Prioritized}}
        <h2 class="section-title">Prioritized tests</h2>
        <table>
            <thead><tr><th>Priority</th><th>Score</th><th>Endpoint</th><th>Action</th><th>Suggested tests</th></tr></thead>
            <tbody>
                {{range .Prioritized}}
                <tr><td><span class="badge {{.Priority}}">{{.Priority}}</span></td><td>{{printf "%.1f" .PriorityScore}}</td><td>{{.Method}} {{.Endpoint}}</td><td>{{.SuggestedAction}}</td><td>{{range $i, $t := .SuggestedTests}}{{if $i}}<br>{{end}}{{$t}}{{end}}</td></tr>
                {{end}}
            </tbody>
        </table>
        {{end}}

        {{if .RegressionRisks}}
        <h2 class="section-title">Regression risks</h2>
        <table>
            <thead><tr><th>Priority</th><th>Score</th><th>Endpoint</th><th>Description</th><th>Action</th></tr></thead>
            <tbody>
                {{range .RegressionRisks}}
                <tr><td><span class="badge {{.Priority}}">{{.Priority}}</span></td><td>{{printf "%.1f" .PriorityScore}}</td><td>{{.Endpoint}}</td><td>{{.Description}}</td><td>{{.SuggestedAction}}</td></tr>
                {{end}}
            </tbody>
        </table>
        {{end}}

        {{if .CoverageGaps}}
        <h2 class="section-title">Coverage gaps</h2>
        <table>
            <thead><tr><th>Priority</th><th>Score</th><th>Endpoint</th><th>Status</th><th>Action</th></tr></thead>
            <tbody>
                {{range .CoverageGaps}}
                <tr><td><span class="badge {{.Priority}}">{{.Priority}}</span></td><td>{{printf "%.1f" .PriorityScore}}</td><td>{{.Method}} {{.Endpoint}}</td><td>{{.Status}}</td><td>{{.SuggestedAction}}</td></tr>
                {{end}}
            </tbody>
        </table>
        {{end}}
    </div>
</body>
</html>`

const historyTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>API Error History</title>
    <style>{{style}}</style>
</head>
<body>
    <div class="container">
        <h1>API Error History</h1>
        <p class="timestamp">{{if not .Since.IsZero}}{{.Since.Format "2006-01-02"}}{{else}}all snapshots{{end}} to {{.Until.Format "2006-01-02"}}</p>
        <div class="summary">
            <div class="summary-card"><div class="summary-label">Snapshots</div><div class="summary-value">{{len .Series.Points}}</div></div>
            <div class="summary-card"><div class="summary-label">Average</div><div class="summary-value">{{pct .Series.Average}}</div></div>
            <div class="summary-card"><div class="summary-label">Highest</div><div class="summary-value">{{pct .Series.Highest}}</div></div>
            <div class="summary-card"><div class="summary-label">Lowest</div><div class="summary-value">{{pct .Series.Lowest}}</div></div>
        </div>
        <table>
            <thead><tr><th>Snapshot</th><th>Requests</th><th>Error rate</th><th>Critical</th></tr></thead>
            <tbody>
                {{range .Series.Points}}
                <tr><td>{{.SnapshotID}}</td><td>{{.TotalRequests}}</td><td>{{pct .ErrorRate}}</td><td>{{.Critical}}</td></tr>
                {{end}}
            </tbody>
        </table>
    </div>
</body>
</html>`

var templateFuncs = template.FuncMap{
	"pct":   func(v float64) string { return domain.NewPercentage(v).String() },
	"ms":    optionalMs,
	"style": func() template.CSS { return template.CSS(htmlStyle) },
}

var (
	analysisTmpl = template.Must(template.New("analysis").Funcs(templateFuncs).Parse(htmlTemplate))
	historyTmpl  = template.Must(template.New("history").Funcs(templateFuncs).Parse(historyTemplate))
)

func writeHTML(w io.Writer, a *domain.Analysis) error {
	if err := analysisTmpl.Execute(w, a); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}

func writeHistoryHTML(w io.Writer, h application.HistoryResult) error {
	if err := historyTmpl.Execute(w, h); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}
