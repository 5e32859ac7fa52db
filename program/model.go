package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tui "github.com/charmbracelet/bubbletea"
	styles "github.com/charmbracelet/lipgloss"
	plot "github.com/chriskim06/drawille-go"
	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/keilerkonzept/topk/heap"

	"github.com/keilerkonzept/harvestgraph/internal/heatmap"
	"github.com/keilerkonzept/harvestgraph/internal/ingest"
	"github.com/keilerkonzept/harvestgraph/internal/window"
)

const (
	traceLines = 6
	statsLines = 6
	statsRing  = 256
)

var (
	borderColor = styles.AdaptiveColor{Light: "#555", Dark: "#555"}
	borderFg    = styles.NewStyle().Foreground(borderColor)
	statsStyle  = styles.NewStyle().Foreground(styles.AdaptiveColor{Light: "1", Dark: "9"})
	traceStyle  = styles.NewStyle().
			BorderStyle(styles.NormalBorder()).
			BorderTop(true).
			BorderForeground(borderColor)
)

type changeMsg struct {
	change ingest.Change
	ok     bool
	err    error
}

type pollMsg time.Time

type fatalMsg struct{ err error }

type model struct {
	logger  log.Logger
	store   *window.Store
	pipe    *ingest.Pipeline
	watcher *ingest.Watcher
	mix     *familyMix
	metrics *loopMetrics
	painter painter
	opt     heatmap.Options
	poll    time.Duration
	now     func() time.Time

	width, height int
	paused        bool
	showTrace     bool
	showStats     bool

	trigger heatmap.Trigger
	frame   string
	overlay string
	leaders []heap.Item
	help    help.Model
	trace   *plot.Canvas

	err error
}

type modelOptions struct {
	Logger    log.Logger
	Store     *window.Store
	Pipeline  *ingest.Pipeline
	Watcher   *ingest.Watcher
	Mix       *familyMix
	Painter   painter
	Heatmap   heatmap.Options
	Poll      time.Duration
	ShowTrace bool
	ShowStats bool
}

func newModel(o modelOptions) *model {
	const (
		defaultWidth  = 80
		defaultHeight = 24
	)
	if o.Logger == nil {
		o.Logger = log.NewNopLogger()
	}
	m := &model{
		logger:    o.Logger,
		store:     o.Store,
		pipe:      o.Pipeline,
		watcher:   o.Watcher,
		mix:       o.Mix,
		metrics:   newLoopMetrics(statsRing),
		painter:   o.Painter,
		opt:       o.Heatmap,
		poll:      o.Poll,
		now:       time.Now,
		width:     defaultWidth,
		height:    defaultHeight,
		showTrace: o.ShowTrace,
		showStats: o.ShowStats,
		help:      help.New(),
	}
	m.resizeTrace()
	return m
}

func (m *model) Init() tui.Cmd {
	return tui.Batch(m.waitForChange(), m.pollAfter())
}

// waitForChange blocks on the directory watcher. It is the only code that
// runs off the event loop and it touches no model state.
func (m *model) waitForChange() tui.Cmd {
	if m.watcher == nil {
		return nil
	}
	w := m.watcher
	return func() tui.Msg {
		c, ok, err := w.Next()
		return changeMsg{change: c, ok: ok, err: err}
	}
}

func (m *model) pollAfter() tui.Cmd {
	return tui.Tick(m.poll, func(t time.Time) tui.Msg { return pollMsg(t) })
}

func (m *model) Update(msg tui.Msg) (tui.Model, tui.Cmd) {
	switch msg := msg.(type) {
	case fatalMsg:
		m.err = msg.err
		level.Error(m.logger).Log("msg", "fatal", "err", msg.err)
		return m, tui.Quit
	case changeMsg:
		if !msg.ok {
			return m, nil
		}
		if cmd := m.onChange(msg); cmd != nil {
			return m, cmd
		}
		m.redraw()
		return m, m.waitForChange()
	case pollMsg:
		now := time.Time(msg)
		if cmd := m.ingest(m.pipe.Check); cmd != nil {
			return m, cmd
		}
		m.store.AdvanceTo(now)
		m.mix.advance(now)
		m.redraw()
		return m, m.pollAfter()
	case tui.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.resizeTrace()
		m.redraw()
		return m, nil
	case tui.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tui.Quit
		case key.Matches(msg, keys.Pause):
			m.paused = !m.paused
		case key.Matches(msg, keys.Trace):
			m.showTrace = !m.showTrace
			m.resizeTrace()
		case key.Matches(msg, keys.Stats):
			m.showStats = !m.showStats
		default:
			return m, nil
		}
		m.trigger.Force()
		m.redraw()
		return m, nil
	}
	return m, nil
}

func (m *model) onChange(msg changeMsg) tui.Cmd {
	if msg.err != nil {
		level.Warn(m.logger).Log("msg", "watch error, polling", "err", msg.err)
		return m.ingest(m.pipe.Check)
	}
	level.Debug(m.logger).Log("msg", "log changed", "change", msg.change)
	switch msg.change {
	case ingest.Created:
		return m.ingest(m.pipe.Reopen)
	case ingest.Modified:
		return m.ingest(m.pipe.Check)
	case ingest.Removed:
		level.Info(m.logger).Log("msg", "log deleted", "path", m.pipe.Path())
	}
	return nil
}

// ingest runs one synchronous read step. Errors coming out of the pipeline
// mean the time series can no longer be trusted, so they end the program.
func (m *model) ingest(step func() (int, error)) tui.Cmd {
	start := time.Now()
	_, err := step()
	m.metrics.observeDrain(start)
	if err != nil {
		return func() tui.Msg { return fatalMsg{err} }
	}
	return nil
}

// heatmapLines is the number of text rows left for the heat-map.
func (m *model) heatmapLines() int {
	reserved := 1
	if m.showTrace {
		reserved += traceLines + 2 // border and label
	}
	if m.showStats {
		reserved += statsLines
	}
	return max(1, m.height-reserved)
}

func (m *model) resizeTrace() {
	w := max(2, heatmap.Columns(m.width))
	p := plot.NewCanvas(w, traceLines)
	p.NumDataPoints = w
	p.ShowAxis = false
	var highlight, dim plot.Color
	if styles.DefaultRenderer().HasDarkBackground() {
		highlight, dim = plot.Red, plot.DimGray
	} else {
		highlight, dim = plot.Black, plot.LightGray
	}
	p.LineColors = []plot.Color{highlight, dim}
	m.trace = &p
}

// unit is the time covered by one pixel row of the heat-map.
func (m *model) unit() time.Duration {
	return heatmap.Unit(m.store.Width(), 2*m.heatmapLines())
}

// redraw renders a new frame when the trigger says the picture changed.
// While paused the last frame stays on screen.
func (m *model) redraw() {
	if m.paused {
		return
	}
	now := m.now()
	lines := m.heatmapLines()
	if !m.trigger.Due(m.store.Newest(), now, m.unit(), m.width, lines) {
		return
	}
	start := time.Now()
	f := heatmap.Render(m.store, now, m.width, 2*lines, m.opt)
	m.frame = m.painter.Paint(f)
	m.overlay = f.Overlay
	m.leaders, _ = m.mix.rank(now)
	if m.showTrace {
		m.fillTrace()
	}
	m.metrics.observeRender(start)
}

func (m *model) fillTrace() {
	checks, eligible := heatmap.Trace(m.store, m.trace.NumDataPoints)
	pad := func(s []float64) []float64 {
		out := make([]float64, m.trace.NumDataPoints)
		copy(out[len(out)-len(s):], s)
		return out
	}
	m.trace.Fill([][]float64{pad(checks), pad(eligible)})
}

func (m *model) View() string {
	parts := []string{m.frame}
	if m.showTrace {
		label := borderFg.Render("checks / eligible per bucket")
		parts = append(parts, traceStyle.Render(styles.JoinVertical(styles.Left, m.trace.String(), label)))
	}
	if m.showStats {
		parts = append(parts, statsStyle.Render(strings.Join(m.statsBlock(), "\n")))
	}
	status := m.help.View(keys)
	if mix := legend(m.leaders); mix != "" {
		status += "  " + borderFg.Render(mix)
	}
	parts = append(parts, status)
	return styles.JoinVertical(styles.Left, parts...)
}

func (m *model) statsBlock() []string {
	title := "STATS (RUNNING)"
	if m.paused {
		title = "STATS (PAUSED)"
	}
	ps := m.pipe.Stats()
	return []string{
		title,
		fmt.Sprintf("lines: %s  records: %s  overlong: %d  reopens: %d",
			humanize.Comma(int64(ps.Lines)), humanize.Comma(int64(ps.Records)), ps.Overlong, ps.Reopens),
		fmt.Sprintf("accepted: %s  too old: %d  duplicate: %d",
			humanize.Comma(int64(ps.Accepted)), ps.Dropped, ps.Duplicate),
		fmt.Sprintf("window: %d x %s  frames: %d", m.store.Len(), m.store.Width(), m.metrics.frames),
		fmt.Sprintf("drain: %s", m.metrics.drain.snapshot()),
		fmt.Sprintf("render: %s", m.metrics.render.snapshot()),
	}
}
