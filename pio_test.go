// pio_test.go - exercises the PIO's control-word decoding, edge/level
// listener dispatch on output pins, and bit-control interrupt
// generation from an input-driven pin.

package main

import "testing"

func TestPIOModeSelectAndBitControlDirection(t *testing.T) {
	p := NewPIO()
	dev := p.AsDevice()

	dev.IO.Write(2, 0b11_00_1111) // port A: mode select, bit-control
	if p.A.mode != pioModeBitCtrl {
		t.Fatalf("mode = %d, want bit-control", p.A.mode)
	}
	if !p.A.dirFollows {
		t.Fatal("bit-control mode select did not arm the direction-mask follow-up")
	}
	dev.IO.Write(2, 0b0000_0101) // direction mask: pins 0 and 2 input
	if p.A.dir != 0b0101 {
		t.Errorf("dir = %08b, want 00000101", p.A.dir)
	}
	if p.A.dirFollows {
		t.Error("direction follow-up not consumed")
	}
}

func TestPIOEdgeListenerFiresOnOutputPinChange(t *testing.T) {
	p := NewPIO()
	var calls []struct{ pin, bit byte }
	p.A.Listen(3, func(pin, newBit, changed byte) {
		calls = append(calls, struct{ pin, bit byte }{pin, newBit})
	})

	p.A.writeData(1 << 3)
	p.A.writeData(1 << 3) // unchanged: no event
	p.A.writeData(0)

	if len(calls) != 2 {
		t.Fatalf("listener fired %d times, want 2", len(calls))
	}
	if calls[0].bit != 1 || calls[1].bit != 0 {
		t.Errorf("listener saw bits %v, want rising then falling", calls)
	}
}

func TestPIOEdgeListenerSkipsInputPins(t *testing.T) {
	p := NewPIO()
	fired := false
	p.A.Listen(2, func(pin, newBit, changed byte) { fired = true })
	p.A.dir = 1 << 2 // pin 2 is input

	p.A.writeData(1 << 2)
	if fired {
		t.Error("guest data write drove an input-direction pin's listener")
	}
}

func TestPIOLevelListenerFiresOnConfiguredLevelOnly(t *testing.T) {
	p := NewPIO()
	var levels []byte
	p.A.ListenLevel(1, 0, func(pin, state byte) { levels = append(levels, state) })

	p.A.writeData(1 << 1) // rise: not the configured level
	p.A.writeData(0)      // fall: fires
	p.A.writeData(1 << 1)
	p.A.writeData(0)

	if len(levels) != 2 {
		t.Fatalf("level listener fired %d times, want 2 (falls only)", len(levels))
	}
}

func TestPIOBitControlInterruptOrReduction(t *testing.T) {
	p := NewPIO()
	var vector byte
	var raised int
	p.OnInterrupt(func(v byte) { vector = v; raised++ })

	p.B.mode = pioModeBitCtrl
	p.B.intVector = 0x42
	p.B.intEnable = true
	p.B.activeHigh = true
	p.B.andOp = false
	p.B.intMask = 0b1111_1110 // watch pin 0 only

	p.B.SetPin(0, 1)
	if raised != 1 {
		t.Fatalf("interrupt raised %d times, want 1", raised)
	}
	if vector != 0x42 {
		t.Errorf("vector = 0x%02X, want 0x42", vector)
	}
}

func TestPIOInterruptControlWordAndMaskFollows(t *testing.T) {
	p := NewPIO()
	var raised int
	p.OnInterrupt(func(v byte) { raised++ })
	dev := p.AsDevice()

	dev.IO.Write(2, 0b11_00_1111) // port A: bit-control mode
	dev.IO.Write(2, 0x00)         // direction mask follow-up: all output
	// interrupt control word: enable(7) | AND(6) | active-high(5) | mask-follows(4) | 0111
	dev.IO.Write(2, 0b1111_0111)
	if !p.A.intEnable || !p.A.andOp || !p.A.activeHigh || !p.A.maskFollows {
		t.Fatalf("control word not decoded: %+v", p.A)
	}
	if p.A.intMask != 0xFF {
		t.Fatalf("intMask = 0x%02X, want 0xFF (reset while mask follows)", p.A.intMask)
	}
	dev.IO.Write(2, 0b1111_1100) // mask follow-up: monitor pins 0 and 1
	if p.A.intMask != 0b1111_1100 {
		t.Fatalf("intMask = 0x%02X, want 0xFC", p.A.intMask)
	}

	p.A.SetPin(0, 1)
	if raised != 0 {
		t.Fatal("AND reduction fired with only one of two monitored pins high")
	}
	p.A.SetPin(1, 1)
	if raised != 1 {
		t.Fatalf("interrupt raised %d times, want 1 (both monitored pins high)", raised)
	}
	p.A.SetPin(7, 1) // masked pin: no effect on the reduction
	if raised != 1 {
		t.Fatalf("masked pin change raised an interrupt")
	}
}

func TestPIOControlReadReturnsIdentifier(t *testing.T) {
	p := NewPIO()
	dev := p.AsDevice()
	if got := dev.IO.Read(2); got != pioControlID {
		t.Errorf("port A control read = 0x%02X, want 0x%02X", got, pioControlID)
	}
	if got := dev.IO.Read(3); got != pioControlID {
		t.Errorf("port B control read = 0x%02X, want 0x%02X", got, pioControlID)
	}
}
