package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/teleokit/motorbus/pkg/motorbus"
	"github.com/teleokit/motorbus/pkg/transport"
)

type ScanCommand struct {
	Port     string `long:"port" short:"p" description:"Scan a single port instead of all serial ports"`
	Protocol string `long:"protocol" default:"feetech" choice:"feetech" choice:"dynamixel" description:"Servo protocol on the bus"`
	Baud     int    `long:"baud" description:"Baud rate (default: protocol default)"`
	MaxID    int    `long:"max-id" default:"10" description:"Highest servo ID to probe"`
}

type foundServo struct {
	port        string
	id          int
	modelNumber int
	modelName   string
}

func (c *ScanCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Servo Scanner"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━"))
	fmt.Println()

	ports, err := c.portList()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		return nil
	}

	var found []foundServo
	for _, port := range ports {
		fmt.Printf("Scanning %s...\n", port)
		found = append(found, c.scanPort(port)...)
	}
	fmt.Println()

	if len(found) == 0 {
		fmt.Println("No servos found.")
		fmt.Println("Make sure the arm is connected and powered on.")
		return nil
	}

	rows := make([][]string, 0, len(found))
	for _, s := range found {
		rows = append(rows, []string{
			s.port,
			fmt.Sprintf("%d", s.id),
			fmt.Sprintf("%d", s.modelNumber),
			s.modelName,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Port", "ID", "Model #", "Model").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	fmt.Println(t.Render())
	fmt.Println()
	fmt.Println(successStyle.Render(fmt.Sprintf("Found %d servo(s).", len(found))))
	return nil
}

func (c *ScanCommand) portList() ([]string, error) {
	if c.Port != "" {
		return []string{c.Port}, nil
	}

	all, err := transport.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}

	ports := make([]string, 0, len(all))
	for _, port := range all {
		// Bluetooth ports on macOS hang the probe.
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		ports = append(ports, port)
	}
	return ports, nil
}

// scanPort probes servo IDs with a short per-ping timeout; an empty port
// costs MaxID timeouts at worst.
func (c *ScanCommand) scanPort(port string) []foundServo {
	adapter, err := newTransport(c.Protocol, port, c.Baud, 100*time.Millisecond)
	if err != nil {
		fmt.Printf("  %v\n", err)
		return nil
	}
	if err := adapter.Open(); err != nil {
		fmt.Println(dimStyle.Render(fmt.Sprintf("  skipping: %v", err)))
		return nil
	}
	defer adapter.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var found []foundServo
	for id := 1; id <= c.MaxID; id++ {
		number, err := adapter.Ping(ctx, id)
		if err != nil {
			continue
		}
		name := "unknown"
		if model, ok := motorbus.LookupModelByNumber(number); ok {
			name = model.Name
		}
		found = append(found, foundServo{port: port, id: id, modelNumber: number, modelName: name})
	}
	return found
}
