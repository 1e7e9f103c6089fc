package charts

import (
	"encoding/json"
	"fmt"
	"html"
	"math"
	"strings"
)

const vegaLiteSchema = "https://vega.github.io/schema/vega-lite/v5.json"

// VegaLite renders ch as an indented Vega-Lite v5 spec with inline data.
func VegaLite(ch *Chart) ([]byte, error) {
	values := make([]map[string]any, len(ch.Values))
	for i := range ch.Values {
		values[i] = map[string]any{ch.X: ch.Labels[i], ch.Y: ch.Values[i]}
	}
	xType := "nominal"
	if ch.Mark == MarkLine {
		xType = "ordinal"
	}
	spec := map[string]any{
		"$schema": vegaLiteSchema,
		"mark":    string(ch.Mark),
		"data":    map[string]any{"values": values},
		"encoding": map[string]any{
			"x": map[string]any{"field": ch.X, "type": xType},
			"y": map[string]any{"field": ch.Y, "type": "quantitative"},
		},
	}
	if ch.Title != "" {
		spec["title"] = ch.Title
	}
	out, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode chart: %w", err)
	}
	return out, nil
}

// Plot geometry, in pixels.
const (
	svgWidth  = 640
	svgHeight = 400
	marginL   = 60
	marginR   = 20
	marginT   = 40
	marginB   = 60
)

// SVG renders ch as a standalone SVG image.
func SVG(ch *Chart) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n", svgWidth, svgHeight, svgWidth, svgHeight)
	b.WriteString(`<rect width="100%" height="100%" fill="white"/>` + "\n")
	if ch.Title != "" {
		fmt.Fprintf(&b, `<text x="%d" y="24" text-anchor="middle" font-family="sans-serif" font-size="16">%s</text>`+"\n", svgWidth/2, html.EscapeString(ch.Title))
	}

	plotW := float64(svgWidth - marginL - marginR)
	plotH := float64(svgHeight - marginT - marginB)
	lo, hi := valueRange(ch.Values)
	y := func(v float64) float64 { return marginT + plotH - (v-lo)/(hi-lo)*plotH }

	// axes
	fmt.Fprintf(&b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="black"/>`+"\n", marginL, marginT, marginL, svgHeight-marginB)
	fmt.Fprintf(&b, `<line x1="%d" y1="%.1f" x2="%d" y2="%.1f" stroke="black"/>`+"\n", marginL, y(0), svgWidth-marginR, y(0))
	fmt.Fprintf(&b, `<text x="%d" y="%.1f" text-anchor="end" font-family="sans-serif" font-size="10">%s</text>`+"\n", marginL-4, y(hi)+4, formatTick(hi))
	fmt.Fprintf(&b, `<text x="%d" y="%.1f" text-anchor="end" font-family="sans-serif" font-size="10">%s</text>`+"\n", marginL-4, y(lo)+4, formatTick(lo))

	n := len(ch.Values)
	if n > 0 {
		step := plotW / float64(n)
		var points []string
		for i, v := range ch.Values {
			cx := marginL + step*(float64(i)+0.5)
			switch ch.Mark {
			case MarkLine:
				points = append(points, fmt.Sprintf("%.1f,%.1f", cx, y(v)))
			default:
				top, bottom := math.Min(y(v), y(0)), math.Max(y(v), y(0))
				fmt.Fprintf(&b, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="steelblue"/>`+"\n", cx-step*0.4, top, step*0.8, bottom-top)
			}
			fmt.Fprintf(&b, `<text x="%.1f" y="%d" text-anchor="middle" font-family="sans-serif" font-size="10">%s</text>`+"\n", cx, svgHeight-marginB+16, html.EscapeString(ch.Labels[i]))
		}
		if ch.Mark == MarkLine {
			fmt.Fprintf(&b, `<polyline points="%s" fill="none" stroke="steelblue" stroke-width="2"/>`+"\n", strings.Join(points, " "))
		}
	}

	fmt.Fprintf(&b, `<text x="%d" y="%d" text-anchor="middle" font-family="sans-serif" font-size="12">%s</text>`+"\n", svgWidth/2, svgHeight-16, html.EscapeString(ch.X))
	b.WriteString("</svg>\n")
	return b.String()
}

// valueRange returns the y domain, always including zero and never empty.
func valueRange(values []float64) (lo, hi float64) {
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		hi = lo + 1
	}
	return lo, hi
}

func formatTick(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
