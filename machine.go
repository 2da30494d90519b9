// machine.go - the machine composition: owns the address/IO maps, the
// MMU, every device, and the Z80, and drives the per-step tick loop.
// The Machine itself is the Z80Bus: memory and IO accesses decode
// through the maps, and Tick fans elapsed T-states out to every device
// with timing state.
package main

import "fmt"

const (
	flashBase = 0x000000
	sramBase  = 0x080000
	videoBase = 0x100000

	ioCFBase       = 0x70
	ioVideoBase    = 0x80
	ioHostFSBase   = 0xC0
	ioPIOBase      = 0xD0
	ioKeyboardBase = 0xE0
	ioMMUBase      = 0xF0
)

// KeyEvent is a single PS/2-style scan-code event sourced from the host.
type KeyEvent struct {
	Pressed  bool
	Extended bool
	Code     byte
}

// HostInputSource lets the machine poll for pending key events without
// depending on any particular windowing toolkit.
type HostInputSource interface {
	PollKeyEvents() []KeyEvent
}

type MachineConfig struct {
	ROMPath        string
	UserProgPath   string
	EEPROMPath     string
	CFImagePath    string
	TFImagePath    string
	HostFSRoot     string
	FlashSize      int
	AutoExitOnZero bool
	DisableAudio   bool
}

type Machine struct {
	addrMap *AddressMap
	ioMap   *IOMap
	mmu     *MMU

	flash    *Flash
	sram     *SRAM
	video    *VideoCoprocessor
	pio      *PIO
	i2cBus   *I2CBus
	eeprom   *EEPROM
	rtc      *RTC
	keyboard *Keyboard
	repeater *KeyRepeater
	uart     *UART
	cf       *CompactFlash
	hostfs   *HostFS
	audio    *AudioBackend

	cpu *CPU_Z80

	shouldExit bool
	paused     bool

	autoExitOnZero bool
	hasSteppedOnce bool

	input HostInputSource
}

func NewMachine(cfg MachineConfig) (*Machine, error) {
	m := &Machine{
		addrMap:        NewAddressMap(),
		ioMap:          NewIOMap(),
		mmu:            NewMMU(),
		autoExitOnZero: cfg.AutoExitOnZero,
	}

	flashSize := cfg.FlashSize
	if flashSize == 0 {
		flashSize = flashSizeLarge
	}
	m.flash = NewFlash(flashSize)
	if cfg.ROMPath != "" {
		if err := m.flash.LoadROM(cfg.ROMPath, cfg.UserProgPath); err != nil {
			return nil, fmt.Errorf("machine: load rom: %w", err)
		}
	}
	m.sram = NewSRAM(512 * 1024)

	memOp := m.memoryOp()
	m.video = NewVideoCoprocessor(memOp)

	if cfg.TFImagePath != "" {
		tf, err := NewSPITFCardFile(cfg.TFImagePath)
		if err != nil {
			logConfigError("tfcard", err)
		} else {
			m.video.SetTFImage(tf)
		}
	}

	m.pio = NewPIO()
	m.pio.OnInterrupt(m.onPIOInterrupt)

	m.i2cBus = NewI2CBus(m.pio, &m.pio.A)

	if cfg.EEPROMPath != "" {
		eeprom, err := NewEEPROM(cfg.EEPROMPath)
		if err != nil {
			logConfigError("eeprom", err)
		} else {
			m.eeprom = eeprom
			m.i2cBus.Connect(eeprom.AsI2CDevice(0x50))
		}
	}

	m.rtc = NewRTC()
	m.i2cBus.Connect(m.rtc.AsI2CDevice(0x68))

	m.keyboard = NewKeyboard(&m.pio.B, 0)
	m.repeater = NewKeyRepeater(isModifierKey)
	m.uart = NewUART(&m.pio.A, uartPinTX, nil)

	if cfg.CFImagePath != "" {
		cf, err := NewCompactFlash(cfg.CFImagePath)
		if err != nil {
			return nil, fmt.Errorf("machine: cf image: %w", err)
		}
		m.cf = cf
	}

	if cfg.HostFSRoot != "" {
		m.hostfs = NewHostFS(cfg.HostFSRoot, memOp)
	}

	if err := m.installDevices(); err != nil {
		return nil, err
	}
	m.addrMap.Seal()
	m.ioMap.Seal()

	m.cpu = NewCPU_Z80(m)

	if !cfg.DisableAudio {
		if audio, err := NewAudioBackend(m.video.sound); err != nil {
			logConfigError("audio", err)
		} else {
			m.audio = audio
		}
	}

	return m, nil
}

func isModifierKey(code byte) bool {
	switch code {
	case 0x12, 0x59, 0x14, 0x11: // left/right shift, left ctrl, left alt (PS/2 set 2 codes)
		return true
	}
	return false
}

func (m *Machine) installDevices() error {
	if err := m.addrMap.MapMemory(m.flash.AsDevice(), flashBase); err != nil {
		return err
	}
	if m.flash.Size() == flashSizeSmall {
		mirror := *m.flash.AsDevice()
		if err := m.addrMap.MapMemory(&mirror, flashBase+flashSizeSmall); err != nil {
			return err
		}
	}
	if err := m.addrMap.MapMemory(m.sram.AsDevice(), sramBase); err != nil {
		return err
	}
	videoDev := m.video.AsDevice()
	if err := m.addrMap.MapMemory(videoDev, videoBase); err != nil {
		return err
	}

	if m.cf != nil {
		if err := m.ioMap.MapIO(m.cf.AsDevice(), ioCFBase); err != nil {
			return err
		}
	}
	if err := m.ioMap.MapIO(videoDev, ioVideoBase); err != nil {
		return err
	}
	if m.hostfs != nil {
		if err := m.ioMap.MapIO(m.hostfs.AsDevice(), ioHostFSBase); err != nil {
			return err
		}
	}
	if err := m.ioMap.MapIO(m.pio.AsDevice(), ioPIOBase); err != nil {
		return err
	}
	if err := m.ioMap.MapIO(m.keyboard.AsDevice(), ioKeyboardBase); err != nil {
		return err
	}
	if err := m.ioMap.MapIO(m.mmu.AsDevice(m.ioMap), ioMMUBase); err != nil {
		return err
	}
	return nil
}

func (m *Machine) onPIOInterrupt(vector byte) {
	m.cpu.SetIRQVector(vector)
	m.cpu.SetIRQLine(true)
}

// --- Z80Bus implementation: the core address-decoding fabric ---

func (m *Machine) Read(addr uint16) byte {
	phys := m.mmu.Translate(addr)
	return m.addrMap.Read8(phys)
}

func (m *Machine) Write(addr uint16, value byte) {
	phys := m.mmu.Translate(addr)
	m.addrMap.Write8(phys, value)
}

func (m *Machine) In(port uint16) byte {
	return m.ioMap.Read(port)
}

func (m *Machine) Out(port uint16, value byte) {
	m.ioMap.Write(port, value)
}

// Tick fans the elapsed T-states out to every device with timing state.
// Unlike a no-op bus adapter, this is where the cooperative step loop's
// timing actually happens.
func (m *Machine) Tick(elapsed int) {
	m.flash.Tick(elapsed)
	m.video.Tick(elapsed)
	m.keyboard.Tick(elapsed)
	m.uart.Tick(elapsed)
}

// --- physical (untranslated) access for DMA/host-FS ---

func (m *Machine) PhysRead(addr uint32) byte     { return m.addrMap.Read8(addr) }
func (m *Machine) PhysWrite(addr uint32, v byte) { m.addrMap.Write8(addr, v) }

func (m *Machine) memoryOp() *MemoryOp {
	return &MemoryOp{
		ReadByte:      m.Read,
		WriteByte:     m.Write,
		PhysReadByte:  m.PhysRead,
		PhysWriteByte: m.PhysWrite,
	}
}

// --- step loop ---

// Step runs one machine-loop iteration: CPU step, device ticks, host
// input poll, render signal. Returns the elapsed T-states.
func (m *Machine) Step() int {
	before := m.cpu.Cycles
	wasIFF1 := m.cpu.IFF1
	m.cpu.Step()
	if wasIFF1 && !m.cpu.IFF1 {
		// IFF1 only drops on interrupt/NMI service (or DI); either way the
		// line has done its job for this request.
		m.cpu.SetIRQLine(false)
	}
	elapsed := int(m.cpu.Cycles - before)
	m.hasSteppedOnce = true

	if m.autoExitOnZero && m.hasSteppedOnce && m.cpu.PC == 0 {
		m.shouldExit = true
		return elapsed
	}

	// device ticks already ran via Tick(), called by the CPU's own bus
	// hook for each cycle group it executed.

	if m.keyboard.NeedsHostPoll() && m.input != nil {
		for _, ev := range m.input.PollKeyEvents() {
			m.keyboard.PushKeyEvent(ev.Pressed, ev.Extended, ev.Code)
		}
	}

	return elapsed
}

func (m *Machine) NeedRender() bool { return m.video.NeedRender() }

// SetInputSource wires a host frontend's key-event source into the step
// loop's coarse poll.
func (m *Machine) SetInputSource(src HostInputSource) { m.input = src }

// Repeater exposes the host-boundary auto-repeat pacer so a frontend
// can drive it from its own held-key state.
func (m *Machine) Repeater() *KeyRepeater { return m.repeater }

// CPU exposes the Z80 core for the debugger adapter; the rest of the
// machine's devices stay unexported.
func (m *Machine) CPU() *CPU_Z80 { return m.cpu }

func (m *Machine) ShouldExit() bool { return m.shouldExit }

func (m *Machine) RequestExit() { m.shouldExit = true }

// Run drives the step loop until ShouldExit or the machine is paused
// for debugging; it is the single-threaded cooperative scheduler
// described by the core's concurrency model.
func (m *Machine) Run() {
	for !m.shouldExit {
		if m.paused {
			return
		}
		m.Step()
	}
}

func (m *Machine) Pause()         { m.paused = true }
func (m *Machine) Unpause()       { m.paused = false }
func (m *Machine) IsPaused() bool { return m.paused }

func (m *Machine) Reset() {
	m.cpu.Reset()
	m.mmu.Reset()
	m.addrMap.ResetDevices()
	m.ioMap.ResetDevices()
	m.hasSteppedOnce = false
	m.shouldExit = false
}

func (m *Machine) Close() error {
	if m.audio != nil {
		m.audio.Close()
	}
	if m.cf != nil {
		m.cf.Close()
	}
	if m.eeprom != nil {
		m.eeprom.Close()
	}
	if m.video.spi != nil {
		m.video.spi.Close()
	}
	return nil
}
