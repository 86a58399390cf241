// Package figure renders the analysis figures: SVG scatter plots with
// overlaid fitted curves and uncertainty bands, plus asciigraph
// previews for the terminal. Figure files are overwritten
// unconditionally on every run.
package figure

import (
	"fmt"
	"os"
	"strings"

	"github.com/guptarohit/asciigraph"
)

// Canonical figure file names, fig1-fig6.
const (
	Fig1Linear   = "fig1_linear.svg"
	Fig2Cubic    = "fig2_poly3.svg"
	Fig3Degree8  = "fig3_poly8.svg"
	Fig4Overlay  = "fig4_overlay.svg"
	Fig5Smoother = "fig5_smoother.svg"
	Fig6Bayes    = "fig6_posterior_smooth.svg"
)

const (
	svgWidth  = 900
	svgHeight = 540
	margin    = 50.0
)

type line struct {
	label string
	color string
	x, y  []float64
}

type band struct {
	color     string
	x, lo, hi []float64
}

// Figure accumulates scatter points, fitted curves and an optional
// uncertainty band, then renders to SVG.
type Figure struct {
	Title string

	px, py []float64
	lines  []line
	band   *band
}

func New(title string) *Figure {
	return &Figure{Title: title}
}

func (f *Figure) AddPoints(x, y []float64) {
	f.px = append(f.px, x...)
	f.py = append(f.py, y...)
}

func (f *Figure) AddLine(label string, x, y []float64, color string) {
	f.lines = append(f.lines, line{label: label, color: color, x: x, y: y})
}

func (f *Figure) AddBand(x, lo, hi []float64, color string) {
	f.band = &band{color: color, x: x, lo: lo, hi: hi}
}

// SVG renders the figure.
func (f *Figure) SVG() string {
	xMin, xMax, yMin, yMax := f.bounds()

	toX := func(v float64) float64 {
		return margin + (v-xMin)/(xMax-xMin)*(svgWidth-2*margin)
	}
	toY := func(v float64) float64 {
		return svgHeight - margin - (v-yMin)/(yMax-yMin)*(svgHeight-2*margin)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, svgWidth, svgHeight, svgWidth, svgHeight)

	// Band under everything else.
	if b := f.band; b != nil && len(b.x) > 1 {
		sb.WriteString(`<polygon fill="` + b.color + `" fill-opacity="0.25" points="`)
		for i := range b.x {
			fmt.Fprintf(&sb, "%.1f,%.1f ", toX(b.x[i]), toY(b.hi[i]))
		}
		for i := len(b.x) - 1; i >= 0; i-- {
			fmt.Fprintf(&sb, "%.1f,%.1f ", toX(b.x[i]), toY(b.lo[i]))
		}
		sb.WriteString("\"/>\n")
	}

	// Axes frame with extrema labels.
	fmt.Fprintf(&sb, `<rect x="%.0f" y="%.0f" width="%.0f" height="%.0f" fill="none" stroke="#444"/>
`, margin, margin, svgWidth-2*margin, svgHeight-2*margin)
	fmt.Fprintf(&sb, `<text x="%.0f" y="%.0f" fill="#999" font-size="11">%.4g</text>
`, margin, svgHeight-margin+16, xMin)
	fmt.Fprintf(&sb, `<text x="%.0f" y="%.0f" fill="#999" font-size="11" text-anchor="end">%.4g</text>
`, svgWidth-margin, svgHeight-margin+16, xMax)
	fmt.Fprintf(&sb, `<text x="%.0f" y="%.0f" fill="#999" font-size="11" text-anchor="end">%.4g</text>
`, margin-4, svgHeight-margin, yMin)
	fmt.Fprintf(&sb, `<text x="%.0f" y="%.0f" fill="#999" font-size="11" text-anchor="end">%.4g</text>
`, margin-4, margin+10, yMax)

	// Scatter.
	sb.WriteString(`<g fill="#3ec46d" fill-opacity="0.55">` + "\n")
	for i := range f.px {
		fmt.Fprintf(&sb, `<circle cx="%.1f" cy="%.1f" r="2"/>
`, toX(f.px[i]), toY(f.py[i]))
	}
	sb.WriteString("</g>\n")

	// Fitted curves plus legend.
	for li, l := range f.lines {
		sb.WriteString(`<polyline fill="none" stroke="` + l.color + `" stroke-width="2" points="`)
		for i := range l.x {
			fmt.Fprintf(&sb, "%.1f,%.1f ", toX(l.x[i]), toY(l.y[i]))
		}
		sb.WriteString("\"/>\n")
		fmt.Fprintf(&sb, `<text x="%.0f" y="%.0f" fill="%s" font-size="12">%s</text>
`, svgWidth-margin-150, margin+16+float64(li)*16, l.color, l.label)
	}

	fmt.Fprintf(&sb, `<text x="%.0f" y="%.0f" fill="#ddd" font-size="14">%s</text>
`, margin, margin-12, f.Title)
	sb.WriteString("</svg>")
	return sb.String()
}

// WriteFile writes the figure, replacing any existing file of the
// same name.
func (f *Figure) WriteFile(path string) error {
	return os.WriteFile(path, []byte(f.SVG()), 0644)
}

func (f *Figure) bounds() (xMin, xMax, yMin, yMax float64) {
	first := true
	grow := func(x, y float64) {
		if first {
			xMin, xMax, yMin, yMax = x, x, y, y
			first = false
			return
		}
		if x < xMin {
			xMin = x
		}
		if x > xMax {
			xMax = x
		}
		if y < yMin {
			yMin = y
		}
		if y > yMax {
			yMax = y
		}
	}
	for i := range f.px {
		grow(f.px[i], f.py[i])
	}
	for _, l := range f.lines {
		for i := range l.x {
			grow(l.x[i], l.y[i])
		}
	}
	if b := f.band; b != nil {
		for i := range b.x {
			grow(b.x[i], b.lo[i])
			grow(b.x[i], b.hi[i])
		}
	}
	if first {
		return 0, 1, 0, 1
	}
	if xMax == xMin {
		xMax = xMin + 1
	}
	if yMax == yMin {
		yMax = yMin + 1
	}
	return xMin, xMax, yMin, yMax
}

// Terminal renders a series as an asciigraph plot for quick previews.
func Terminal(y []float64, caption string) string {
	return asciigraph.Plot(y,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	)
}
