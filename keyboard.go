// keyboard.go - PS/2-style keyboard: a scan-code FIFO drained through a
// three-phase output-timing state machine paced against a PIO clock pin,
// plus a host-boundary key-repeat pacer.

package main

const (
	keyboardFIFOSize = 512

	keyboardActiveUs      = 19.7
	keyboardInactiveUs    = 3900
	keyboardCheckPeriodUs = 15000

	keyRepeatInitialMs = 500
	keyRepeatPeriodMs  = 50

	psExtendedPrefix = 0xE0
	psBreakCode      = 0xF0
)

type ps2Phase int

const (
	ps2Idle ps2Phase = iota
	ps2Active
	ps2Inactive
)

// Keyboard drives a single PIO pin with PS/2-style scan-code bytes.
type Keyboard struct {
	fifo  *byteRing
	port  *pioPort
	clock byte // pin index used as the PS/2 clock/data line

	phase          ps2Phase
	ticksRemaining int
	shiftReg       byte

	checkTimer int
	needPoll   bool
}

func NewKeyboard(port *pioPort, clockPin byte) *Keyboard {
	return &Keyboard{
		fifo:       newByteRing(keyboardFIFOSize),
		port:       port,
		clock:      clockPin,
		checkTimer: usToTStates(keyboardCheckPeriodUs),
	}
}

// PushKeyEvent enqueues the scan-code sequence for a press or release.
// Extended keys are preceded by 0xE0; releases are preceded by 0xF0
// (preceded by 0xE0 too, if extended).
func (k *Keyboard) PushKeyEvent(pressed, extended bool, code byte) {
	if extended {
		k.fifo.Push(psExtendedPrefix)
	}
	if !pressed {
		k.fifo.Push(psBreakCode)
	}
	k.fifo.Push(code)
}

// PushScanCodes enqueues a raw multi-byte sequence; the host boundary
// uses this for keys whose make codes don't fit the prefix scheme
// (PAUSE, PrintScreen).
func (k *Keyboard) PushScanCodes(seq []byte) {
	for _, b := range seq {
		k.fifo.Push(b)
	}
}

// Tick advances the PS/2 output FSM and the coarse host-poll timer by
// elapsed T-states.
func (k *Keyboard) Tick(elapsed int) {
	k.checkTimer -= elapsed
	if k.checkTimer <= 0 {
		k.checkTimer += usToTStates(keyboardCheckPeriodUs)
		k.needPoll = true
	}

	switch k.phase {
	case ps2Idle:
		if b, ok := k.fifo.Pop(); ok {
			k.shiftReg = b
			k.port.SetPin(k.clock, 0)
			k.phase = ps2Active
			k.ticksRemaining = usToTStates(keyboardActiveUs)
		}
	case ps2Active:
		k.ticksRemaining -= elapsed
		if k.ticksRemaining <= 0 {
			k.port.SetPin(k.clock, 1)
			k.phase = ps2Inactive
			k.ticksRemaining = usToTStates(keyboardInactiveUs)
		}
	case ps2Inactive:
		k.ticksRemaining -= elapsed
		if k.ticksRemaining <= 0 {
			k.phase = ps2Idle
		}
	}
}

// NeedsHostPoll reports and clears whether the coarse timer elapsed
// since the last call, signalling the machine loop to poll host input.
func (k *Keyboard) NeedsHostPoll() bool {
	v := k.needPoll
	k.needPoll = false
	return v
}

func (k *Keyboard) AsDevice() *Device {
	return &Device{
		Name: "keyboard",
		IO: &Region{
			Size: 16,
			Read: func(offset uint32) byte {
				if offset == 0 {
					return k.shiftReg
				}
				return 0
			},
			Write: func(offset uint32, value byte) {},
		},
		Reset: func() {
			k.fifo.Reset()
			k.phase = ps2Idle
			k.shiftReg = 0
		},
	}
}

// KeyRepeater paces host-boundary auto-repeat: 500 ms initial delay, then
// every 50 ms, excluding modifier keys. It is driven by the host input
// loop (out of this core's scope to source key state from a windowing
// toolkit), not by the machine step loop.
type KeyRepeater struct {
	heldMs     map[byte]int
	isModifier func(code byte) bool
}

func NewKeyRepeater(isModifier func(code byte) bool) *KeyRepeater {
	return &KeyRepeater{heldMs: make(map[byte]int), isModifier: isModifier}
}

// Advance steps the repeat clock by elapsedMs for a held key and reports
// whether a repeat event should fire now.
func (r *KeyRepeater) Advance(code byte, elapsedMs int) bool {
	if r.isModifier != nil && r.isModifier(code) {
		return false
	}
	held, ok := r.heldMs[code]
	if !ok {
		r.heldMs[code] = 0
		return false
	}
	held += elapsedMs
	if held < keyRepeatInitialMs {
		r.heldMs[code] = held
		return false
	}
	over := held - keyRepeatInitialMs
	if over >= keyRepeatPeriodMs {
		r.heldMs[code] = keyRepeatInitialMs + over%keyRepeatPeriodMs
		return true
	}
	r.heldMs[code] = held
	return false
}

func (r *KeyRepeater) Release(code byte) {
	delete(r.heldMs, code)
}
