// uart.go - bit-banged UART transmitter: a per-bit sampler on one PIO
// pin assembles a 10-bit frame (start + 8 data + stop) and emits the
// reconstructed byte to the host. RX is not driven; the guest side
// only transmits on this pin.
package main

import (
	"bufio"
	"io"
	"os"

	"golang.org/x/term"
)

const uartBaudUs = 17.361

const (
	uartPinTX = 4
)

// UART samples one PIO pin at the baud rate to reassemble TX frames.
type UART struct {
	port *pioPort
	pin  byte

	framing        bool
	ticksToNextBit int
	bitIndex       int
	frame          byte

	out *bufio.Writer
}

func NewUART(port *pioPort, txPin byte, sink io.Writer) *UART {
	if sink == nil {
		sink = os.Stdout
	}
	// A real terminal wants single-byte granularity (interactive feel);
	// a redirected file/pipe can take a larger buffer since every byte
	// is flushed immediately anyway regardless of size.
	bufSize := 4096
	if f, ok := sink.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bufSize = 1
	}
	u := &UART{port: port, pin: txPin, out: bufio.NewWriterSize(sink, bufSize)}
	port.Listen(txPin, u.onEdge)
	return u
}

func (u *UART) onEdge(pin, newBit, changed byte) {
	if u.framing || newBit != 0 {
		return
	}
	u.framing = true
	u.bitIndex = 0
	u.frame = 0
	u.ticksToNextBit = usToTStates(uartBaudUs)
}

// Tick advances the bit sampler by elapsed T-states.
func (u *UART) Tick(elapsed int) {
	if !u.framing {
		return
	}
	u.ticksToNextBit -= elapsed
	for u.ticksToNextBit <= 0 {
		u.ticksToNextBit += usToTStates(uartBaudUs)
		u.sampleBit()
		if !u.framing {
			return
		}
	}
}

func (u *UART) sampleBit() {
	if u.bitIndex < 8 {
		bit := u.port.GetPin(u.pin)
		u.frame |= bit << uint(u.bitIndex)
		u.bitIndex++
		return
	}
	// stop bit sampled; frame complete. Flushed immediately regardless
	// of sink: TX output is interactive even when redirected to a file.
	u.out.WriteByte(u.frame)
	u.out.Flush()
	u.framing = false
}
