// Package badge renders shields-style SVG badges for the overall error rate.
package badge

import (
	"fmt"
	"html/template"
	"io"
)

type Style string

const (
	StyleFlat       Style = "flat"
	StyleFlatSquare Style = "flat-square"
)

type Options struct {
	Label     string
	ErrorRate float64 // percent, 0..100
	Style     Style
}

const svgTemplate = `<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="{{.Width}}" height="20" role="img" aria-label="{{.Label}}: {{.ValueText}}">
  <title>{{.Label}}: {{.ValueText}}</title>
  <linearGradient id="s" x2="0" y2="100%">
    <stop offset="0" stop-color="#bbb" stop-opacity=".1"/>
    <stop offset="1" stop-opacity=".1"/>
  </linearGradient>
  <clipPath id="r">
    <rect width="{{.Width}}" height="20" rx="{{.Rx}}" fill="#fff"/>
  </clipPath>
  <g clip-path="url(#r)">
    <rect width="{{.LabelWidth}}" height="20" fill="#555"/>
    <rect x="{{.LabelWidth}}" width="{{.ValueWidth}}" height="20" fill="{{.Color}}"/>
    <rect width="{{.Width}}" height="20" fill="url(#s)"/>
  </g>
  <g fill="#fff" text-anchor="middle" font-family="Verdana,Geneva,DejaVu Sans,sans-serif" text-rendering="geometricPrecision" font-size="110">
    <text aria-hidden="true" x="{{.LabelX}}" y="150" fill="#010101" fill-opacity=".3" transform="scale(.1)" textLength="{{.LabelTextWidth}}">{{.Label}}</text>
    <text x="{{.LabelX}}" y="140" transform="scale(.1)" fill="#fff" textLength="{{.LabelTextWidth}}">{{.Label}}</text>
    <text aria-hidden="true" x="{{.ValueX}}" y="150" fill="#010101" fill-opacity=".3" transform="scale(.1)" textLength="{{.ValueTextWidth}}">{{.ValueText}}</text>
    <text x="{{.ValueX}}" y="140" transform="scale(.1)" fill="#fff" textLength="{{.ValueTextWidth}}">{{.ValueText}}</text>
  </g>
</svg>`

var badgeTmpl = template.Must(template.New("badge").Parse(svgTemplate))

type templateData struct {
	Label          string
	ValueText      string
	Color          string
	Width          int
	LabelWidth     int
	ValueWidth     int
	LabelX         int
	ValueX         int
	LabelTextWidth int
	ValueTextWidth int
	Rx             int
}

// Writer adapts Generate to the application's badge port.
type Writer struct{}

func (Writer) Write(w io.Writer, label string, errorRate float64, style string) error {
	return Generate(w, Options{Label: label, ErrorRate: errorRate, Style: Style(style)})
}

func Generate(w io.Writer, opts Options) error {
	switch opts.Style {
	case "":
		opts.Style = StyleFlat
	case StyleFlat, StyleFlatSquare:
	default:
		return fmt.Errorf("unknown badge style %q", opts.Style)
	}

	valueText := formatPercent(opts.ErrorRate)
	labelWidth := len(opts.Label)*7 + 10
	valueWidth := len(valueText)*7 + 10

	rx := 3
	if opts.Style == StyleFlatSquare {
		rx = 0
	}

	data := templateData{
		Label:          opts.Label,
		ValueText:      valueText,
		Color:          colorForErrorRate(opts.ErrorRate),
		Width:          labelWidth + valueWidth,
		LabelWidth:     labelWidth,
		ValueWidth:     valueWidth,
		LabelX:         labelWidth * 5,
		ValueX:         (labelWidth + valueWidth/2) * 10,
		LabelTextWidth: len(opts.Label) * 70,
		ValueTextWidth: len(valueText) * 70,
		Rx:             rx,
	}
	return badgeTmpl.Execute(w, data)
}

func formatPercent(p float64) string {
	if p == float64(int(p)) {
		return fmt.Sprintf("%.0f%%", p)
	}
	if p < 1 {
		return fmt.Sprintf("%.2f%%", p)
	}
	return fmt.Sprintf("%.1f%%", p)
}

// Lower is better.
func colorForErrorRate(p float64) string {
	switch {
	case p < 1:
		return "#4c1"
	case p < 5:
		return "#97ca00"
	case p < 10:
		return "#dfb317"
	case p < 25:
		return "#fe7d37"
	default:
		return "#e05d44"
	}
}
