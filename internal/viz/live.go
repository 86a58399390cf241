package viz

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
)

const (
	traceWidth      = 60
	historyCapacity = 600
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	chainStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("240")).Padding(1, 2)
)

type TickMsg time.Time

// Feed collects draws from the sampler's chain goroutines for the
// viewer to poll. It satisfies the sampler's observer contract and is
// safe for concurrent writers.
type Feed struct {
	mu        sync.Mutex
	iter      []int
	total     int
	intercept [][]float64
	sigma     [][]float64
}

func NewFeed(chains int) *Feed {
	return &Feed{
		iter:      make([]int, chains),
		intercept: make([][]float64, chains),
		sigma:     make([][]float64, chains),
	}
}

func (f *Feed) OnDraw(chain, iter, total int, intercept, sigma float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if chain < 0 || chain >= len(f.iter) {
		return
	}
	f.iter[chain] = iter + 1
	f.total = total
	f.intercept[chain] = appendCapped(f.intercept[chain], intercept)
	f.sigma[chain] = appendCapped(f.sigma[chain], sigma)
}

func appendCapped(s []float64, v float64) []float64 {
	s = append(s, v)
	if len(s) > historyCapacity {
		s = s[1:]
	}
	return s
}

type snapshot struct {
	iter      []int
	total     int
	intercept [][]float64
	sigma     [][]float64
}

func (f *Feed) snapshot() snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := snapshot{
		iter:      append([]int(nil), f.iter...),
		total:     f.total,
		intercept: make([][]float64, len(f.intercept)),
		sigma:     make([][]float64, len(f.sigma)),
	}
	for i := range f.intercept {
		snap.intercept[i] = append([]float64(nil), f.intercept[i]...)
		snap.sigma[i] = append([]float64(nil), f.sigma[i]...)
	}
	return snap
}

// Model is the Bubble Tea model for the live sampling view.
type Model struct {
	feed     *Feed
	done     <-chan error
	title    string
	running  bool
	finished bool
	err      error
	snap     snapshot
}

// NewModel wires the viewer to a feed and a completion channel. The
// channel should deliver the sampler's final error when it finishes.
func NewModel(title string, feed *Feed, done <-chan error) Model {
	return Model{
		feed:    feed,
		done:    done,
		title:   title,
		running: true,
	}
}

// Finished reports whether the viewer saw the sampler complete. The
// viewer consumes the completion channel, so callers must use this
// instead of re-reading the channel.
func (m Model) Finished() bool { return m.finished }

// Err reports the sampler error observed before the viewer quit.
func (m Model) Err() error { return m.err }

func (m Model) Init() tea.Cmd {
	return tea.Tick(time.Second/10, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		}
	case TickMsg:
		select {
		case err := <-m.done:
			m.finished = true
			m.err = err
			m.snap = m.feed.snapshot()
			return m, tea.Quit
		default:
		}
		if m.running {
			m.snap = m.feed.snapshot()
		}
		return m, tea.Tick(time.Second/10, func(t time.Time) tea.Msg { return TickMsg(t) })
	}
	return m, nil
}

func (m Model) View() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render(strings.ToUpper(m.title)) + "\n")

	snap := m.snap
	for c := range snap.iter {
		bar := progressBar(snap.iter[c], snap.total, 24)
		last := ""
		if n := len(snap.sigma[c]); n > 0 {
			last = fmt.Sprintf("  σ %.3f", snap.sigma[c][n-1])
		}
		line := fmt.Sprintf("chain %d %s %5d/%d%s", c, bar, snap.iter[c], snap.total, last)
		s.WriteString(chainStyle.Render(line) + "\n")
	}

	if pooled := pool(snap.intercept); len(pooled) > 1 {
		chart := asciigraph.Plot(pooled,
			asciigraph.Height(6),
			asciigraph.Width(traceWidth),
			asciigraph.Caption("intercept"))
		s.WriteString(graphStyle.Render(chart) + "\n")
	}
	if pooled := pool(snap.sigma); len(pooled) > 1 {
		chart := asciigraph.Plot(pooled,
			asciigraph.Height(6),
			asciigraph.Width(traceWidth),
			asciigraph.Caption("sigma"))
		s.WriteString(graphStyle.Render(chart) + "\n")
	}

	status := "SAMPLING"
	if !m.running {
		status = "PAUSED"
	}
	s.WriteString(labelStyle.Render("Status") + valueStyle.Render(status) + "\n")
	s.WriteString(helpStyle.Render("SP:Pause Q:Quit"))
	return panelStyle.Render(s.String())
}

func progressBar(done, total, width int) string {
	if total <= 0 {
		return "[" + strings.Repeat("-", width) + "]"
	}
	filled := done * width / total
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("=", filled) + strings.Repeat("-", width-filled) + "]"
}

// pool concatenates the chains so the trace shows each chain's recent
// history end to end.
func pool(chains [][]float64) []float64 {
	var out []float64
	for _, c := range chains {
		out = append(out, c...)
	}
	return out
}
