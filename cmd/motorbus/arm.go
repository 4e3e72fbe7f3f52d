package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/teleokit/motorbus/pkg/dynamixel"
	"github.com/teleokit/motorbus/pkg/feetech"
	"github.com/teleokit/motorbus/pkg/motorbus"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// jointNames is the default six-joint arm layout, servo IDs 1-6 in order.
var jointNames = []string{
	"shoulder_pan",
	"shoulder_lift",
	"elbow_flex",
	"wrist_flex",
	"wrist_roll",
	"gripper",
}

// jointColors picks a distinct chart color per joint.
var jointColors = map[string]string{
	"shoulder_pan":  "196", // red
	"shoulder_lift": "208", // orange
	"elbow_flex":    "226", // yellow
	"wrist_flex":    "46",  // green
	"wrist_roll":    "51",  // cyan
	"gripper":       "201", // magenta
}

// armOptions are the connection flags shared by calibrate and monitor.
type armOptions struct {
	Port     string   `long:"port" short:"p" required:"true" description:"Serial port of the arm"`
	Protocol string   `long:"protocol" default:"feetech" choice:"feetech" choice:"dynamixel" description:"Servo protocol on the bus"`
	Model    string   `long:"model" default:"sts3215" description:"Servo model of every joint"`
	Baud     int      `long:"baud" description:"Baud rate (default: protocol default)"`
	Joints   []string `long:"joint" description:"Joint name, repeatable, servo IDs assigned in order (default: six-joint arm)"`
}

func newTransport(protocol, port string, baud int, timeout time.Duration) (motorbus.Transport, error) {
	switch protocol {
	case "feetech":
		return feetech.NewAdapter(feetech.Config{Port: port, BaudRate: baud, Timeout: timeout})
	case "dynamixel":
		return dynamixel.NewAdapter(dynamixel.Config{Port: port, BaudRate: baud, Timeout: timeout})
	}
	return nil, fmt.Errorf("unknown protocol %q", protocol)
}

// buildBus assembles a bus for the configured arm. Joints get consecutive
// servo IDs starting at 1, the wiring convention of the arms this tool
// targets.
func (o *armOptions) buildBus(mode motorbus.NormMode, cal motorbus.Calibration) (*motorbus.Bus, error) {
	if _, ok := motorbus.LookupModel(o.Model); !ok {
		return nil, fmt.Errorf("unknown servo model %q (known: %s)",
			o.Model, strings.Join(motorbus.ListModels(), ", "))
	}

	joints := o.Joints
	if len(joints) == 0 {
		joints = jointNames
	}

	motors := make(map[string]motorbus.Motor, len(joints))
	for i, name := range joints {
		motors[name] = motorbus.Motor{ID: i + 1, Model: o.Model, NormMode: mode}
	}

	transport, err := newTransport(o.Protocol, o.Port, o.Baud, time.Second)
	if err != nil {
		return nil, err
	}

	return motorbus.NewBus(motorbus.Config{
		Transport:   transport,
		Motors:      motors,
		Calibration: cal,
		Retries:     2,
	})
}
