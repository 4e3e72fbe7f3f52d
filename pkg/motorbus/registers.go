package motorbus

import "fmt"

// Register enumerates the control table entries the bus knows how to address.
// Resolution to a wire address happens per model; unsupported combinations
// are rejected before any wire I/O.
type Register int

const (
	RegModelNumber Register = iota
	RegID
	RegBaudRate
	RegReturnDelay
	RegMinPositionLimit
	RegMaxPositionLimit
	RegMaxTorqueLimit
	RegPGain
	RegDGain
	RegIGain
	RegHomingOffset
	RegOperatingMode
	RegTorqueEnable
	RegAcceleration
	RegGoalPosition
	RegGoalVelocity
	RegTorqueLimit
	RegLock
	RegPresentPosition
	RegPresentVelocity
	RegPresentLoad
	RegPresentVoltage
	RegPresentTemperature
	RegMoving
	RegPresentCurrent
	RegMaxAcceleration
	RegHardwareErrorStatus
)

var registerNames = map[Register]string{
	RegModelNumber:         "Model_Number",
	RegID:                  "ID",
	RegBaudRate:            "Baud_Rate",
	RegReturnDelay:         "Return_Delay_Time",
	RegMinPositionLimit:    "Min_Position_Limit",
	RegMaxPositionLimit:    "Max_Position_Limit",
	RegMaxTorqueLimit:      "Max_Torque_Limit",
	RegPGain:               "P_Coefficient",
	RegDGain:               "D_Coefficient",
	RegIGain:               "I_Coefficient",
	RegHomingOffset:        "Homing_Offset",
	RegOperatingMode:       "Operating_Mode",
	RegTorqueEnable:        "Torque_Enable",
	RegAcceleration:        "Acceleration",
	RegGoalPosition:        "Goal_Position",
	RegGoalVelocity:        "Goal_Velocity",
	RegTorqueLimit:         "Torque_Limit",
	RegLock:                "Lock",
	RegPresentPosition:     "Present_Position",
	RegPresentVelocity:     "Present_Velocity",
	RegPresentLoad:         "Present_Load",
	RegPresentVoltage:      "Present_Voltage",
	RegPresentTemperature:  "Present_Temperature",
	RegMoving:              "Moving",
	RegPresentCurrent:      "Present_Current",
	RegMaxAcceleration:     "Maximum_Acceleration",
	RegHardwareErrorStatus: "Hardware_Error_Status",
}

func (r Register) String() string {
	if name, ok := registerNames[r]; ok {
		return name
	}
	return fmt.Sprintf("register(%d)", int(r))
}

// RegisterEntry locates a register in a model's control table.
type RegisterEntry struct {
	Addr     uint16
	Length   int // 1, 2 or 4 bytes
	ReadOnly bool
	// SignBit is the bit position used for sign-magnitude encoding.
	// 0 means the register is not sign-magnitude encoded.
	SignBit int
	// Normalizable marks registers whose values pass through calibration.
	Normalizable bool
}

// Control table for the Feetech STS/SMS series.
var stsTable = map[Register]RegisterEntry{
	RegModelNumber:        {Addr: 3, Length: 2, ReadOnly: true},
	RegID:                 {Addr: 5, Length: 1},
	RegBaudRate:           {Addr: 6, Length: 1},
	RegReturnDelay:        {Addr: 7, Length: 1},
	RegMinPositionLimit:   {Addr: 9, Length: 2},
	RegMaxPositionLimit:   {Addr: 11, Length: 2},
	RegMaxTorqueLimit:     {Addr: 16, Length: 2},
	RegPGain:              {Addr: 21, Length: 1},
	RegDGain:              {Addr: 22, Length: 1},
	RegIGain:              {Addr: 23, Length: 1},
	RegHomingOffset:       {Addr: 31, Length: 2, SignBit: 11},
	RegOperatingMode:      {Addr: 33, Length: 1},
	RegTorqueEnable:       {Addr: 40, Length: 1},
	RegAcceleration:       {Addr: 41, Length: 1},
	RegGoalPosition:       {Addr: 42, Length: 2, Normalizable: true},
	RegGoalVelocity:       {Addr: 46, Length: 2, SignBit: 15},
	RegTorqueLimit:        {Addr: 48, Length: 2},
	RegLock:               {Addr: 55, Length: 1},
	RegPresentPosition:    {Addr: 56, Length: 2, ReadOnly: true, Normalizable: true},
	RegPresentVelocity:    {Addr: 58, Length: 2, ReadOnly: true, SignBit: 15},
	RegPresentLoad:        {Addr: 60, Length: 2, ReadOnly: true},
	RegPresentVoltage:     {Addr: 62, Length: 1, ReadOnly: true},
	RegPresentTemperature: {Addr: 63, Length: 1, ReadOnly: true},
	RegMoving:             {Addr: 66, Length: 1, ReadOnly: true},
	RegPresentCurrent:     {Addr: 69, Length: 2, ReadOnly: true},
	RegMaxAcceleration:    {Addr: 85, Length: 1},
}

// Control table for the Dynamixel X series (Protocol 2.0).
// Homing offset and position values are plain two's complement, so no
// sign-magnitude bits appear here.
var xSeriesTable = map[Register]RegisterEntry{
	RegModelNumber:         {Addr: 0, Length: 2, ReadOnly: true},
	RegID:                  {Addr: 7, Length: 1},
	RegBaudRate:            {Addr: 8, Length: 1},
	RegReturnDelay:         {Addr: 9, Length: 1},
	RegOperatingMode:       {Addr: 11, Length: 1},
	RegHomingOffset:        {Addr: 20, Length: 4},
	RegMaxPositionLimit:    {Addr: 48, Length: 4},
	RegMinPositionLimit:    {Addr: 52, Length: 4},
	RegTorqueEnable:        {Addr: 64, Length: 1},
	RegHardwareErrorStatus: {Addr: 70, Length: 1, ReadOnly: true},
	RegDGain:               {Addr: 80, Length: 2},
	RegIGain:               {Addr: 82, Length: 2},
	RegPGain:               {Addr: 84, Length: 2},
	RegGoalVelocity:        {Addr: 104, Length: 4},
	RegAcceleration:        {Addr: 108, Length: 4},
	RegGoalPosition:        {Addr: 116, Length: 4, Normalizable: true},
	RegMoving:              {Addr: 122, Length: 1, ReadOnly: true},
	RegPresentCurrent:      {Addr: 126, Length: 2, ReadOnly: true},
	RegPresentVelocity:     {Addr: 128, Length: 4, ReadOnly: true},
	RegPresentPosition:     {Addr: 132, Length: 4, ReadOnly: true, Normalizable: true},
	RegPresentVoltage:      {Addr: 144, Length: 2, ReadOnly: true},
	RegPresentTemperature:  {Addr: 146, Length: 1, ReadOnly: true},
}

// Model describes a servo model and its control table.
type Model struct {
	Name       string
	Number     int // model number reported by ping
	Resolution int // encoder counts per revolution
	Table      map[Register]RegisterEntry
	BaudRates  []int
}

var stsBaudRates = []int{1000000, 500000, 250000, 128000, 115200, 57600, 38400, 19200}

var dynamixelBaudRates = []int{9600, 57600, 115200, 1000000, 2000000, 3000000, 4000000}

var models = map[string]*Model{
	"sts3215": {
		Name:       "sts3215",
		Number:     777,
		Resolution: 4096,
		Table:      stsTable,
		BaudRates:  stsBaudRates,
	},
	"sts3250": {
		Name:       "sts3250",
		Number:     2825,
		Resolution: 4096,
		Table:      stsTable,
		BaudRates:  stsBaudRates,
	},
	"sm8512bl": {
		Name:       "sm8512bl",
		Number:     11272,
		Resolution: 4096,
		Table:      stsTable,
		BaudRates:  stsBaudRates,
	},
	"xl330-m288": {
		Name:       "xl330-m288",
		Number:     1200,
		Resolution: 4096,
		Table:      xSeriesTable,
		BaudRates:  dynamixelBaudRates,
	},
	"xm430-w350": {
		Name:       "xm430-w350",
		Number:     1020,
		Resolution: 4096,
		Table:      xSeriesTable,
		BaudRates:  dynamixelBaudRates,
	},
}

// LookupModel returns the model definition for a name.
func LookupModel(name string) (*Model, bool) {
	m, ok := models[name]
	return m, ok
}

// LookupModelByNumber returns the model matching a hardware model number.
func LookupModelByNumber(number int) (*Model, bool) {
	for _, m := range models {
		if m.Number == number {
			return m, true
		}
	}
	return nil, false
}

// ListModels returns the names of all known models.
func ListModels() []string {
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	return names
}

// LookupRegister resolves a register for a model.
func LookupRegister(model string, reg Register) (RegisterEntry, error) {
	m, ok := models[model]
	if !ok {
		return RegisterEntry{}, &UnknownRegisterError{Model: model, Register: reg}
	}
	entry, ok := m.Table[reg]
	if !ok {
		return RegisterEntry{}, &UnknownRegisterError{Model: model, Register: reg}
	}
	return entry, nil
}

// HasRegister reports whether a model's control table defines a register.
func HasRegister(model string, reg Register) bool {
	_, err := LookupRegister(model, reg)
	return err == nil
}

// UniformEntry resolves a register across several models and requires every
// model to agree on the (address, length) pair. A disagreement means the
// batched call would touch different registers on different servos, so it
// fails before any wire I/O.
func UniformEntry(modelNames []string, reg Register) (RegisterEntry, error) {
	if len(modelNames) == 0 {
		return RegisterEntry{}, &UnknownRegisterError{Register: reg}
	}

	first, err := LookupRegister(modelNames[0], reg)
	if err != nil {
		return RegisterEntry{}, err
	}
	for _, name := range modelNames[1:] {
		entry, err := LookupRegister(name, reg)
		if err != nil {
			return RegisterEntry{}, err
		}
		if entry.Addr != first.Addr || entry.Length != first.Length {
			return RegisterEntry{}, &RegisterMismatchError{Register: reg, Models: modelNames}
		}
	}
	return first, nil
}
