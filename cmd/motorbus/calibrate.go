package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/teleokit/motorbus/pkg/motorbus"
)

type CalibrateCommand struct {
	armOptions
	Output string   `long:"output" short:"o" default:"calibration.json" description:"Calibration file to write"`
	Invert []string `long:"invert" description:"Joint with inverted drive direction, repeatable"`
}

func (c *CalibrateCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Arm Calibration"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━"))
	fmt.Println()

	bus, err := c.buildBus(motorbus.NormRaw, nil)
	if err != nil {
		return err
	}

	ctx := context.Background()
	fmt.Printf("Connecting to arm on %s...\n", c.Port)
	if err := bus.Connect(ctx, true); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer bus.Disconnect()

	// Torque off so the arm moves freely by hand.
	if err := bus.DisableTorque(ctx); err != nil {
		return fmt.Errorf("disable torque: %w", err)
	}
	fmt.Println(successStyle.Render("Connected, torque disabled."))
	fmt.Println()

	// Step 1: center the logical range on the current pose.
	fmt.Println(subHeaderStyle.Render("Set home position"))
	if !confirm("Move the arm to the middle of its range of motion, then continue.") {
		return nil
	}
	if _, err := bus.SetHalfTurnHomings(ctx); err != nil {
		return fmt.Errorf("set homing offsets: %w", err)
	}
	fmt.Println(successStyle.Render("Homing offsets written."))
	fmt.Println()

	// Step 2: record the range of motion.
	fmt.Println(subHeaderStyle.Render("Record range of motion"))
	fmt.Println("Move each joint to its minimum AND maximum positions.")
	fmt.Println("Explore the full range of motion for all joints.")
	fmt.Println()

	mins, maxes, err := c.recordRanges(ctx, bus)
	if err != nil {
		return err
	}

	cal := make(motorbus.Calibration, len(bus.MotorNames()))
	homings := bus.Calibration()
	for _, name := range bus.MotorNames() {
		motor, _ := bus.Motor(name)
		driveMode := motorbus.DriveNormal
		if slices.Contains(c.Invert, name) {
			driveMode = motorbus.DriveInverted
		}
		cal[name] = motorbus.MotorCalibration{
			ID:           motor.ID,
			DriveMode:    driveMode,
			HomingOffset: homings[name].HomingOffset,
			RangeMin:     mins[name],
			RangeMax:     maxes[name],
		}
	}

	// Step 3: push limits to the servos and persist.
	if err := bus.WriteCalibration(ctx, cal); err != nil {
		return fmt.Errorf("write calibration: %w", err)
	}
	if err := cal.Save(c.Output); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Calibration complete!"))
	fmt.Printf("Saved to %s\n", c.Output)
	fmt.Println()
	fmt.Println("Watch the arm live with: " + headerStyle.Render(
		fmt.Sprintf("motorbus monitor --port %s --calibration %s", c.Port, c.Output)))
	return nil
}

// recordRanges runs the sampling loop under a live table TUI until the user
// presses enter.
func (c *CalibrateCommand) recordRanges(ctx context.Context, bus *motorbus.Bus) (map[string]int, map[string]int, error) {
	samples := make(chan motorbus.RangeSample, 16)
	stop := make(chan struct{})

	type result struct {
		mins, maxes map[string]int
		err         error
	}
	done := make(chan result, 1)

	go func() {
		mins, maxes, err := bus.RecordRangesOfMotion(ctx, stop, func(s motorbus.RangeSample) {
			select {
			case samples <- s:
			default:
			}
		})
		done <- result{mins: mins, maxes: maxes, err: err}
	}()

	model := newRangeModel(bus.MotorNames(), samples, stop)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		close(stop)
		<-done
		return nil, nil, fmt.Errorf("range recording: %w", err)
	}

	r := <-done
	if r.err != nil {
		return nil, nil, r.err
	}
	return r.mins, r.maxes, nil
}

func confirm(prompt string) bool {
	ok := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(prompt).
				Affirmative("Continue").
				Negative("Abort").
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	return ok
}

// Range recording TUI.

type rangeModel struct {
	joints   []string
	samples  <-chan motorbus.RangeSample
	stop     chan struct{}
	current  map[string]int
	mins     map[string]int
	maxes    map[string]int
	quitting bool
}

type sampleMsg motorbus.RangeSample

func newRangeModel(joints []string, samples <-chan motorbus.RangeSample, stop chan struct{}) rangeModel {
	return rangeModel{
		joints:  joints,
		samples: samples,
		stop:    stop,
		current: make(map[string]int),
		mins:    make(map[string]int),
		maxes:   make(map[string]int),
	}
}

func (m rangeModel) waitForSample() tea.Cmd {
	return func() tea.Msg {
		return sampleMsg(<-m.samples)
	}
}

func (m rangeModel) Init() tea.Cmd {
	return m.waitForSample()
}

func (m rangeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			if !m.quitting {
				m.quitting = true
				close(m.stop)
			}
			return m, tea.Quit
		}

	case sampleMsg:
		for name, pos := range msg.Positions {
			m.current[name] = pos
		}
		for name, pos := range msg.Mins {
			m.mins[name] = pos
		}
		for name, pos := range msg.Maxes {
			m.maxes[name] = pos
		}
		return m, m.waitForSample()
	}

	return m, nil
}

func (m rangeModel) View() string {
	if m.quitting {
		return ""
	}

	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableJointStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableCurrentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	tableRangeGoodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableRangeLowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	rows := make([][]string, 0, len(m.joints))
	ranges := make([]int, 0, len(m.joints))
	for _, name := range m.joints {
		rangeSize := m.maxes[name] - m.mins[name]
		ranges = append(ranges, rangeSize)
		rows = append(rows, []string{
			name,
			fmt.Sprintf("%d", m.current[name]),
			fmt.Sprintf("%d", m.mins[name]),
			fmt.Sprintf("%d", m.maxes[name]),
			fmt.Sprintf("%d", rangeSize),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Joint", "Current", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableJointStyle
			case 1:
				return tableCurrentStyle
			case 4:
				if row >= 0 && row < len(ranges) && ranges[row] > 500 {
					return tableRangeGoodStyle
				}
				return tableRangeLowStyle
			default:
				return tableCellStyle
			}
		})

	var sb strings.Builder
	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	sb.WriteString(dimStyle.Render("Press Enter when done"))
	return sb.String()
}
