package dashboard

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/collbench/internal/clientmetrics"
	"github.com/torosent/collbench/internal/metrics"
)

// maxTableRows bounds the per-size table to the most recent sizes.
const maxTableRows = 12

// SweepConfig holds sweep parameters for display.
type SweepConfig struct {
	Benchmark    string
	Distribution string
	Processes    int
	Transport    string
	MinSize      int
	MaxSize      int
	Sizes        int // number of sizes in the sweep
	StdDevMode   string
	ConfigFile   string
}

// Dashboard renders a live terminal UI of a size sweep.
type Dashboard struct {
	traffic      func() clientmetrics.Snapshot
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid        *ui.Grid
	latencyPlot *widgets.Plot
	sizeTable   *widgets.Table
	progress    *widgets.Gauge
	summaryPara *widgets.Paragraph
	trafficPara *widgets.Paragraph

	sizes     []metrics.SizeStats
	startTime time.Time
	cfg       SweepConfig
}

// New creates a new Dashboard. traffic, when set, is polled for the
// collective counters of this rank.
func New(cfg SweepConfig, traffic func() clientmetrics.Snapshot, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	d := newDashboard(cfg, traffic, shutdownFunc)
	d.setupGrid()
	return d, nil
}

func newDashboard(cfg SweepConfig, traffic func() clientmetrics.Snapshot, shutdownFunc func()) *Dashboard {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		traffic:      traffic,
		ctx:          ctx,
		cancel:       cancel,
		shutdownFunc: shutdownFunc,
		startTime:    time.Now(),
		cfg:          cfg,
	}
	d.initWidgets()
	return d
}

// initWidgets initializes all dashboard widgets.
func (d *Dashboard) initWidgets() {
	d.latencyPlot = widgets.NewPlot()
	d.latencyPlot.Title = "Latency by Message Size (us, log2 size)"
	d.latencyPlot.Data = [][]float64{{0, 0}, {0, 0}, {0, 0}}
	d.latencyPlot.LineColors = []ui.Color{ui.ColorGreen, ui.ColorBlue, ui.ColorRed}
	d.latencyPlot.AxesColor = ui.ColorWhite
	d.latencyPlot.BorderStyle.Fg = ui.ColorCyan

	d.sizeTable = widgets.NewTable()
	d.sizeTable.Title = "Sizes"
	d.sizeTable.Rows = tableRows(nil)
	d.sizeTable.TextStyle = ui.NewStyle(ui.ColorWhite)
	d.sizeTable.RowSeparator = false
	d.sizeTable.BorderStyle.Fg = ui.ColorCyan

	d.progress = widgets.NewGauge()
	d.progress.Title = "Sweep Progress"
	d.progress.BarColor = ui.ColorBlue
	d.progress.BorderStyle.Fg = ui.ColorCyan
	d.progress.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Benchmark"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.trafficPara = widgets.NewParagraph()
	d.trafficPara.Title = "Collective Traffic"
	d.trafficPara.Text = "No traffic yet"
	d.trafficPara.TextStyle = ui.NewStyle(ui.ColorGreen)
	d.trafficPara.BorderStyle.Fg = ui.ColorCyan
}

// setupGrid configures the layout grid.
func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.16,
			ui.NewCol(0.6, d.summaryPara),
			ui.NewCol(0.4, d.progress),
		),
		ui.NewRow(0.44,
			ui.NewCol(1.0, d.latencyPlot),
		),
		ui.NewRow(0.40,
			ui.NewCol(0.65, d.sizeTable),
			ui.NewCol(0.35, d.trafficPara),
		),
	)
}

// OnSize records a completed size.
func (d *Dashboard) OnSize(s metrics.SizeStats) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sizes = append(d.sizes, s)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and cleans up.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

// run is the main dashboard update loop.
func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.update()
	d.render()

	for {
		select {
		case <-d.ctx.Done():
			return
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Stop cancels the context once the sweep unwinds.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.mu.Lock()
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				d.mu.Unlock()
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

// update refreshes all widget data.
func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := time.Since(d.startTime)
	d.summaryPara.Text = summaryText(d.cfg, elapsed)

	d.progress.Percent = progressPercent(len(d.sizes), d.cfg.Sizes)
	d.progress.Label = fmt.Sprintf("%d/%d sizes", len(d.sizes), d.cfg.Sizes)

	if series := plotSeries(d.sizes); series != nil {
		d.latencyPlot.Data = series
	}
	if n := len(d.sizes); n > 0 {
		last := d.sizes[n-1]
		d.latencyPlot.Title = fmt.Sprintf("Latency by Message Size | Last: %d bytes avg %.2fus", last.Size, last.AvgLatencyUs)
	}
	d.sizeTable.Rows = tableRows(d.sizes)

	if d.traffic != nil {
		d.trafficPara.Text = trafficText(d.traffic(), elapsed)
	}
}

// render draws all widgets to the screen.
func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func summaryText(cfg SweepConfig, elapsed time.Duration) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("Benchmark: %s", cfg.Benchmark))
	if cfg.Distribution != "" {
		parts = append(parts, fmt.Sprintf("Distribution: %s", cfg.Distribution))
	}
	parts = append(parts, fmt.Sprintf("Ranks: %d", cfg.Processes))
	if cfg.Transport != "" {
		parts = append(parts, fmt.Sprintf("Transport: %s", cfg.Transport))
	}
	line := strings.Join(parts, " | ")

	detail := fmt.Sprintf("Sizes: %d..%d | Std dev: %s", cfg.MinSize, cfg.MaxSize, cfg.StdDevMode)
	if cfg.ConfigFile != "" {
		detail += fmt.Sprintf(" | Config: %s", cfg.ConfigFile)
	}
	return fmt.Sprintf("%s\n%s\nElapsed: %s", line, detail, elapsed.Round(time.Second))
}

func progressPercent(done, total int) int {
	if total <= 0 {
		return 0
	}
	pct := done * 100 / total
	if pct > 100 {
		pct = 100
	}
	return pct
}

// plotSeries returns the avg, min and max series. termui plots by index, so
// each size contributes one point. Nil means too few points to draw.
func plotSeries(sizes []metrics.SizeStats) [][]float64 {
	if len(sizes) < 2 {
		return nil
	}
	avg := make([]float64, len(sizes))
	lo := make([]float64, len(sizes))
	hi := make([]float64, len(sizes))
	for i, s := range sizes {
		avg[i] = s.AvgLatencyUs
		lo[i] = s.MinLatencyUs
		hi[i] = s.MaxLatencyUs
	}
	return [][]float64{avg, lo, hi}
}

func tableRows(sizes []metrics.SizeStats) [][]string {
	rows := [][]string{{"Size", "Avg(us)", "Min(us)", "Max(us)", "Std dev", "Iters"}}
	if len(sizes) == 0 {
		return append(rows, []string{"-", "-", "-", "-", "-", "-"})
	}
	start := 0
	if len(sizes) > maxTableRows {
		start = len(sizes) - maxTableRows
	}
	for _, s := range sizes[start:] {
		rows = append(rows, []string{
			formatSize(s.Size),
			fmt.Sprintf("%.2f", s.AvgLatencyUs),
			fmt.Sprintf("%.2f", s.MinLatencyUs),
			fmt.Sprintf("%.2f", s.MaxLatencyUs),
			fmt.Sprintf("%.2f", s.StdDevUs),
			fmt.Sprintf("%d", s.Iterations),
		})
	}
	return rows
}

// formatSize renders power-of-two sizes with a binary unit.
func formatSize(n int) string {
	switch {
	case n >= 1<<30 && n%(1<<30) == 0:
		return fmt.Sprintf("%dG", n>>30)
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%dM", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%dK", n>>10)
	default:
		return fmt.Sprintf("%d", n)
	}
}

func trafficText(snap clientmetrics.Snapshot, elapsed time.Duration) string {
	lines := []string{
		fmt.Sprintf("Collectives:  %d", snap.Collectives),
		fmt.Sprintf("Sent:         %s", formatBytes(snap.BytesSent)),
		fmt.Sprintf("Received:     %s", formatBytes(snap.BytesReceived)),
	}
	if secs := elapsed.Seconds(); secs > 0 {
		lines = append(lines, fmt.Sprintf("Recv rate:    %s/s", formatBytes(int64(math.Round(float64(snap.BytesReceived)/secs)))))
	}
	if snap.Errors > 0 {
		lines = append(lines, fmt.Sprintf("[Errors:       %d](fg:red)", snap.Errors))
	}

	ops := make([]string, 0, len(snap.ByOp))
	for op := range snap.ByOp {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		lines = append(lines, fmt.Sprintf("  [%s:](fg:cyan) %d", op, snap.ByOp[op]))
	}
	return strings.Join(lines, "\n")
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit && exp < 4; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTP"[exp])
}
