// i2c.go - I2C bus arbitration over two PIO pins. The bus is not itself
// a register device: it instruments the SCL/SDA *output* pins and drives
// the SDA *input* pin, tracking edges to produce START/STOP/address/byte
// events and dispatching to whichever slave answers its 7-bit address.

package main

const (
	i2cPinSDAOut = 0
	i2cPinSCLOut = 1
	i2cPinSDAIn  = 2

	i2cMaxDevices = 128
)

type i2cBusState int

const (
	i2cIdle i2cBusState = iota
	i2cStartReceived
	i2cAddrReceived
	i2cRestartReceived
	i2cReAddrReceived
)

// I2CDevice is implemented by every slave on the bus (EEPROM, RTC).
type I2CDevice struct {
	Addr  byte
	Start func(write bool) bool // returns ack
	Write func(b byte) bool     // returns ack
	Read  func() byte
	Stop  func()
}

// I2CBus arbitrates the shared SCL/SDA lines.
type I2CBus struct {
	pio  *PIO
	port *pioPort

	state i2cBusState

	sclLevel, sdaLevel byte
	curBit             int
	curByte            byte
	writing            bool // transaction direction from master's perspective
	active             *I2CDevice
	devices            [i2cMaxDevices]*I2CDevice
}

// NewI2CBus instruments port (PIO port A, by this machine's wiring) for
// SCL/SDA edges.
func NewI2CBus(pio *PIO, port *pioPort) *I2CBus {
	bus := &I2CBus{pio: pio, port: port, sclLevel: 1, sdaLevel: 1}
	port.Listen(i2cPinSDAOut, bus.onSDAEdge)
	port.Listen(i2cPinSCLOut, bus.onSCLEdge)
	return bus
}

// Connect installs device at its configured 7-bit address.
func (b *I2CBus) Connect(device *I2CDevice) {
	b.devices[device.Addr&0x7F] = device
}

func (b *I2CBus) onSDAEdge(pin, newBit, changed byte) {
	old := b.sdaLevel
	b.sdaLevel = newBit
	if b.sclLevel == 1 {
		if old == 1 && newBit == 0 {
			b.handleStart()
		} else if old == 0 && newBit == 1 {
			b.handleStop()
		}
	}
}

func (b *I2CBus) onSCLEdge(pin, newBit, changed byte) {
	old := b.sclLevel
	b.sclLevel = newBit
	if old == 0 && newBit == 1 {
		b.shiftBit()
	}
}

func (b *I2CBus) handleStart() {
	if b.state == i2cAddrReceived || b.state == i2cReAddrReceived {
		b.state = i2cRestartReceived
	} else {
		b.state = i2cStartReceived
	}
	b.curBit = 0
	b.curByte = 0
}

func (b *I2CBus) handleStop() {
	if b.active != nil && b.active.Stop != nil {
		b.active.Stop()
	}
	b.active = nil
	b.state = i2cIdle
}

func (b *I2CBus) shiftBit() {
	switch b.state {
	case i2cIdle:
		return
	case i2cStartReceived, i2cRestartReceived:
		b.shiftAddressBit()
	case i2cAddrReceived, i2cReAddrReceived:
		b.shiftDataBit()
	}
}

func (b *I2CBus) shiftAddressBit() {
	if b.curBit < 8 {
		b.curByte = (b.curByte << 1) | b.sdaLevel
		b.curBit++
		return
	}
	addr := b.curByte >> 1
	write := b.curByte&1 == 0
	b.writing = write
	dev := b.devices[addr&0x7F]
	ack := false
	if dev != nil {
		ack = dev.Start == nil || dev.Start(write)
	}
	b.driveAck(ack)
	if ack {
		b.active = dev
		if b.state == i2cStartReceived {
			b.state = i2cAddrReceived
		} else {
			b.state = i2cReAddrReceived
		}
	} else {
		b.state = i2cIdle
	}
	b.curBit, b.curByte = 0, 0
	if ack && !write && b.active != nil && b.active.Read != nil {
		b.curByte = b.active.Read()
	}
}

func (b *I2CBus) shiftDataBit() {
	if b.writing {
		if b.curBit < 8 {
			b.curByte = (b.curByte << 1) | b.sdaLevel
			b.curBit++
			return
		}
		ack := false
		if b.active != nil && b.active.Write != nil {
			ack = b.active.Write(b.curByte)
		}
		b.driveAck(ack)
		b.curBit, b.curByte = 0, 0
	} else {
		if b.curBit < 8 {
			bit := (b.curByte >> (7 - b.curBit)) & 1
			b.port.SetPin(i2cPinSDAIn, bit)
			b.curBit++
			return
		}
		// master-driven ACK/NACK bit; either way, load next byte for
		// the following read request.
		b.curBit, b.curByte = 0, 0
		if b.active != nil && b.active.Read != nil {
			b.curByte = b.active.Read()
		}
	}
}

func (b *I2CBus) driveAck(ack bool) {
	if ack {
		b.port.SetPin(i2cPinSDAIn, 0)
	} else {
		b.port.SetPin(i2cPinSDAIn, 1)
	}
}
