package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/teleokit/motorbus/pkg/motorbus"
)

type MonitorCommand struct {
	armOptions
	Calibration string `long:"calibration" short:"c" description:"Calibration file; enables the normalized -100..100 view"`
	Hz          int    `long:"hz" default:"30" description:"Chart refresh frequency"`
}

const (
	monitorHeaderHeight = 2
	monitorLegendHeight = 2
	monitorFooterHeight = 2
	monitorBorderSize   = 2
)

var (
	monitorTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	monitorChartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	monitorStatusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func (c *MonitorCommand) Execute(args []string) error {
	var cal motorbus.Calibration
	normalize := c.Calibration != ""
	if normalize {
		loaded, err := motorbus.LoadCalibration(c.Calibration)
		if err != nil {
			return err
		}
		cal = loaded
	}

	mode := motorbus.NormRaw
	if normalize {
		mode = motorbus.NormRangeM100To100
	}
	bus, err := c.buildBus(mode, cal)
	if err != nil {
		return err
	}

	ctx := context.Background()
	fmt.Printf("Connecting to arm on %s...\n", c.Port)
	if err := bus.Connect(ctx, true); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer bus.Disconnect()

	poller, err := bus.StartPolling(10*time.Millisecond, normalize)
	if err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := poller.Wait(waitCtx); err != nil {
		return fmt.Errorf("first position read: %w", err)
	}

	model := newMonitorModel(bus.MotorNames(), poller, c.Hz, normalize)
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}

type monitorModel struct {
	joints    []string
	poller    *motorbus.Poller
	chart     *streamlinechart.Model
	interval  time.Duration
	normalize bool
	width     int
	height    int
	taken     time.Time
	quitting  bool
}

type frameMsg time.Time

func newMonitorModel(joints []string, poller *motorbus.Poller, hz int, normalize bool) monitorModel {
	if hz <= 0 {
		hz = 30
	}

	var chart streamlinechart.Model
	if normalize {
		chart = streamlinechart.New(80, 20, streamlinechart.WithYRange(-100, 100))
	} else {
		chart = streamlinechart.New(80, 20, streamlinechart.WithYRange(0, 4095))
	}

	for _, name := range joints {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(jointColors[name]))
		chart.SetDataSetStyles(name, runes.ThinLineStyle, style)
	}

	return monitorModel{
		joints:    joints,
		poller:    poller,
		chart:     &chart,
		interval:  time.Second / time.Duration(hz),
		normalize: normalize,
	}
}

func (m monitorModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func (m monitorModel) Init() tea.Cmd {
	return m.tick()
}

func (m monitorModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20
	}
	width = max(m.width-monitorBorderSize-2, 40)
	height = max(m.height-monitorHeaderHeight-monitorLegendHeight-monitorFooterHeight-monitorBorderSize, 10)
	return width, height
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		w, h := m.chartSize()
		m.chart.Resize(w, h)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case frameMsg:
		// Lock-free read of whatever the poller published last.
		if snap, ok := m.poller.Snapshot(); ok && snap.Taken != m.taken {
			for name, pos := range snap.Values {
				m.chart.PushDataSet(name, pos)
			}
			m.chart.DrawAll()
			m.taken = snap.Taken
		}
		return m, m.tick()
	}

	return m, nil
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Monitor stopped.\n"
	}

	var sb strings.Builder

	sb.WriteString(monitorTitleStyle.Render("Arm Monitor"))
	if m.normalize {
		sb.WriteString(monitorStatusStyle.Render("  normalized -100..100"))
	} else {
		sb.WriteString(monitorStatusStyle.Render("  raw encoder counts"))
	}
	sb.WriteString("\n\n")

	sb.WriteString(monitorChartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	var items []string
	for _, name := range m.joints {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(jointColors[name])).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+name)
	}
	sb.WriteString(strings.Join(items, "  "))
	sb.WriteString("\n\n")

	sb.WriteString(monitorStatusStyle.Render("Press 'q' to quit"))
	sb.WriteString("\n")

	return sb.String()
}
