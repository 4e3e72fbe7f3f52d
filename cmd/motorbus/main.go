package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Scan      ScanCommand      `command:"scan" description:"Scan serial ports for connected servos"`
	Calibrate CalibrateCommand `command:"calibrate" description:"Record joint ranges and write a calibration file"`
	Monitor   MonitorCommand   `command:"monitor" alias:"mon" description:"Live position chart for a connected arm"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "motorbus - bus tool for Feetech STS/SMS and Dynamixel servo arms"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
