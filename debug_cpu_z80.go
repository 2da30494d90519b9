// debug_cpu_z80.go - Z80 debug adapter for the machine monitor: drives
// the Machine's cooperative step loop directly (no separate CPU-runner
// goroutine) and adds watchpoints and a symbol table on top of the
// generic breakpoint plumbing.

package main

import (
	"strings"
	"sync"
	"sync/atomic"
)

type DebugZ80 struct {
	cpu     *CPU_Z80
	machine *Machine

	bpMu        sync.RWMutex
	breakpoints map[uint64]*ConditionalBreakpoint
	tempBP      map[uint64]bool // one-shot breakpoints placed by step-over

	wpMu        sync.RWMutex
	watchpoints map[uint64]*Watchpoint

	bpChan chan<- BreakpointEvent
	cpuID  int

	symbols *SymbolTable

	trapRunning atomic.Bool
	trapStop    chan struct{}
}

func NewDebugZ80(cpu *CPU_Z80, machine *Machine) *DebugZ80 {
	return &DebugZ80{
		cpu:         cpu,
		machine:     machine,
		breakpoints: make(map[uint64]*ConditionalBreakpoint),
		tempBP:      make(map[uint64]bool),
		watchpoints: make(map[uint64]*Watchpoint),
		symbols:     NewSymbolTable(),
	}
}

func (d *DebugZ80) CPUName() string   { return "Z80" }
func (d *DebugZ80) AddressWidth() int { return 16 }

func (d *DebugZ80) GetRegisters() []RegisterInfo {
	c := d.cpu
	return []RegisterInfo{
		{Name: "A", BitWidth: 8, Value: uint64(c.A), Group: "general"},
		{Name: "F", BitWidth: 8, Value: uint64(c.F), Group: "flags"},
		{Name: "B", BitWidth: 8, Value: uint64(c.B), Group: "general"},
		{Name: "C", BitWidth: 8, Value: uint64(c.C), Group: "general"},
		{Name: "D", BitWidth: 8, Value: uint64(c.D), Group: "general"},
		{Name: "E", BitWidth: 8, Value: uint64(c.E), Group: "general"},
		{Name: "H", BitWidth: 8, Value: uint64(c.H), Group: "general"},
		{Name: "L", BitWidth: 8, Value: uint64(c.L), Group: "general"},
		{Name: "A'", BitWidth: 8, Value: uint64(c.A2), Group: "shadow"},
		{Name: "F'", BitWidth: 8, Value: uint64(c.F2), Group: "shadow"},
		{Name: "B'", BitWidth: 8, Value: uint64(c.B2), Group: "shadow"},
		{Name: "C'", BitWidth: 8, Value: uint64(c.C2), Group: "shadow"},
		{Name: "D'", BitWidth: 8, Value: uint64(c.D2), Group: "shadow"},
		{Name: "E'", BitWidth: 8, Value: uint64(c.E2), Group: "shadow"},
		{Name: "H'", BitWidth: 8, Value: uint64(c.H2), Group: "shadow"},
		{Name: "L'", BitWidth: 8, Value: uint64(c.L2), Group: "shadow"},
		{Name: "IX", BitWidth: 16, Value: uint64(c.IX), Group: "index"},
		{Name: "IY", BitWidth: 16, Value: uint64(c.IY), Group: "index"},
		{Name: "SP", BitWidth: 16, Value: uint64(c.SP), Group: "general"},
		{Name: "PC", BitWidth: 16, Value: uint64(c.PC), Group: "general"},
		{Name: "I", BitWidth: 8, Value: uint64(c.I), Group: "status"},
		{Name: "R", BitWidth: 8, Value: uint64(c.R), Group: "status"},
		{Name: "IM", BitWidth: 8, Value: uint64(c.IM), Group: "status"},
	}
}

func (d *DebugZ80) GetRegister(name string) (uint64, bool) {
	c := d.cpu
	switch strings.ToUpper(name) {
	case "A":
		return uint64(c.A), true
	case "F":
		return uint64(c.F), true
	case "B":
		return uint64(c.B), true
	case "C":
		return uint64(c.C), true
	case "D":
		return uint64(c.D), true
	case "E":
		return uint64(c.E), true
	case "H":
		return uint64(c.H), true
	case "L":
		return uint64(c.L), true
	case "IX":
		return uint64(c.IX), true
	case "IY":
		return uint64(c.IY), true
	case "SP":
		return uint64(c.SP), true
	case "PC":
		return uint64(c.PC), true
	case "I":
		return uint64(c.I), true
	case "R":
		return uint64(c.R), true
	case "IM":
		return uint64(c.IM), true
	}
	return 0, false
}

func (d *DebugZ80) SetRegister(name string, value uint64) bool {
	c := d.cpu
	switch strings.ToUpper(name) {
	case "A":
		c.A = byte(value)
	case "F":
		c.F = byte(value)
	case "B":
		c.B = byte(value)
	case "C":
		c.C = byte(value)
	case "D":
		c.D = byte(value)
	case "E":
		c.E = byte(value)
	case "H":
		c.H = byte(value)
	case "L":
		c.L = byte(value)
	case "IX":
		c.IX = uint16(value)
	case "IY":
		c.IY = uint16(value)
	case "SP":
		c.SP = uint16(value)
	case "PC":
		c.PC = uint16(value)
	default:
		return false
	}
	return true
}

func (d *DebugZ80) GetPC() uint64     { return uint64(d.cpu.PC) }
func (d *DebugZ80) SetPC(addr uint64) { d.cpu.PC = uint16(addr) }

func (d *DebugZ80) IsRunning() bool {
	return d.cpu.Running() && !d.machine.IsPaused()
}

// Freeze pauses the machine's cooperative step loop in place; no
// separate goroutine is stopped since the loop is single-threaded.
func (d *DebugZ80) Freeze() {
	d.machine.Pause()
}

// Resume continues the step loop. If breakpoints or watchpoints are
// active, a trapped loop runs step-by-step so each hit can be checked;
// otherwise the machine runs freely.
func (d *DebugZ80) Resume() {
	d.machine.Unpause()
	d.bpMu.RLock()
	hasBP := len(d.breakpoints) > 0 || len(d.tempBP) > 0
	d.bpMu.RUnlock()
	d.wpMu.RLock()
	hasWP := len(d.watchpoints) > 0
	d.wpMu.RUnlock()
	if hasBP || hasWP {
		d.trapStop = make(chan struct{})
		d.trapRunning.Store(true)
		go d.trapLoop()
		return
	}
	go d.machine.Run()
}

func (d *DebugZ80) trapLoop() {
	defer d.trapRunning.Store(false)
	for {
		select {
		case <-d.trapStop:
			return
		default:
		}
		if d.machine.IsPaused() || d.machine.ShouldExit() {
			return
		}
		d.machine.Step()
		d.checkWatchpoints()
		pc := uint64(d.cpu.PC)
		if d.hitBreakpoint(pc) {
			d.machine.Pause()
			if d.bpChan != nil {
				select {
				case d.bpChan <- BreakpointEvent{CPUID: d.cpuID, Address: pc}:
				default:
				}
			}
			return
		}
	}
}

func (d *DebugZ80) hitBreakpoint(pc uint64) bool {
	d.bpMu.Lock()
	defer d.bpMu.Unlock()
	if d.tempBP[pc] {
		delete(d.tempBP, pc)
		return true
	}
	bp, ok := d.breakpoints[pc]
	if !ok {
		return false
	}
	if bp.Condition != nil && !d.evalCondition(bp.Condition) {
		return false
	}
	bp.HitCount++
	return true
}

func (d *DebugZ80) evalCondition(cond *BreakpointCondition) bool {
	var lhs uint64
	switch cond.Source {
	case CondSourceRegister:
		v, ok := d.GetRegister(cond.RegName)
		if !ok {
			return false
		}
		lhs = v
	case CondSourceMemory:
		lhs = uint64(d.cpu.bus.Read(uint16(cond.MemAddr)))
	case CondSourceHitCount:
		bp := d.breakpoints[uint64(d.cpu.PC)]
		if bp == nil {
			return false
		}
		lhs = bp.HitCount
	}
	switch cond.Op {
	case CondOpEqual:
		return lhs == cond.Value
	case CondOpNotEqual:
		return lhs != cond.Value
	case CondOpLess:
		return lhs < cond.Value
	case CondOpGreater:
		return lhs > cond.Value
	case CondOpLessEqual:
		return lhs <= cond.Value
	case CondOpGreaterEqual:
		return lhs >= cond.Value
	}
	return false
}

func (d *DebugZ80) checkWatchpoints() {
	d.wpMu.Lock()
	defer d.wpMu.Unlock()
	for addr, wp := range d.watchpoints {
		cur := d.cpu.bus.Read(uint16(addr))
		if cur != wp.LastValue {
			old := wp.LastValue
			wp.LastValue = cur
			if d.bpChan != nil {
				select {
				case d.bpChan <- BreakpointEvent{
					CPUID:         d.cpuID,
					Address:       uint64(d.cpu.PC),
					IsWatch:       true,
					WatchAddr:     addr,
					WatchOldValue: old,
					WatchNewValue: cur,
				}:
				default:
				}
			}
		}
	}
}

// Step executes one instruction through the machine's normal step path
// so device ticks stay consistent with free-run execution.
func (d *DebugZ80) Step() int {
	elapsed := d.machine.Step()
	d.checkWatchpoints()
	return elapsed
}

// StepOver places a temporary breakpoint after the current instruction
// and resumes, so calls/loops are skipped rather than descended into.
func (d *DebugZ80) StepOver() {
	lines := d.Disassemble(uint64(d.cpu.PC), 1)
	size := 1
	if len(lines) > 0 {
		size = lines[0].Size
	}
	target := uint64(d.cpu.PC) + uint64(size)
	d.bpMu.Lock()
	d.tempBP[target] = true
	d.bpMu.Unlock()
	d.Resume()
}

func (d *DebugZ80) Disassemble(addr uint64, count int) []DisassembledLine {
	pc := uint64(d.cpu.PC)
	lines := disassembleZ80(d.ReadMemory, addr, count)
	for i := range lines {
		if lines[i].Address == pc {
			lines[i].IsPC = true
		}
		if lines[i].IsBranch && lines[i].BranchTarget != 0 {
			if name, ok := d.symbols.Lookup(lines[i].BranchTarget); ok {
				lines[i].Mnemonic = substituteLabel(lines[i].Mnemonic, name)
			}
		}
	}
	return lines
}

func (d *DebugZ80) SetBreakpoint(addr uint64) bool {
	d.bpMu.Lock()
	defer d.bpMu.Unlock()
	d.breakpoints[addr] = &ConditionalBreakpoint{Address: addr}
	return true
}

func (d *DebugZ80) SetConditionalBreakpoint(addr uint64, cond *BreakpointCondition) bool {
	d.bpMu.Lock()
	defer d.bpMu.Unlock()
	d.breakpoints[addr] = &ConditionalBreakpoint{Address: addr, Condition: cond}
	return true
}

func (d *DebugZ80) ClearBreakpoint(addr uint64) bool {
	d.bpMu.Lock()
	defer d.bpMu.Unlock()
	if _, ok := d.breakpoints[addr]; ok {
		delete(d.breakpoints, addr)
		return true
	}
	return false
}

func (d *DebugZ80) ClearAllBreakpoints() {
	d.bpMu.Lock()
	defer d.bpMu.Unlock()
	d.breakpoints = make(map[uint64]*ConditionalBreakpoint)
}

func (d *DebugZ80) ListBreakpoints() []uint64 {
	d.bpMu.RLock()
	defer d.bpMu.RUnlock()
	result := make([]uint64, 0, len(d.breakpoints))
	for addr := range d.breakpoints {
		result = append(result, addr)
	}
	return result
}

func (d *DebugZ80) ListConditionalBreakpoints() []*ConditionalBreakpoint {
	d.bpMu.RLock()
	defer d.bpMu.RUnlock()
	result := make([]*ConditionalBreakpoint, 0, len(d.breakpoints))
	for _, bp := range d.breakpoints {
		result = append(result, bp)
	}
	return result
}

func (d *DebugZ80) HasBreakpoint(addr uint64) bool {
	d.bpMu.RLock()
	defer d.bpMu.RUnlock()
	_, ok := d.breakpoints[addr]
	return ok
}

func (d *DebugZ80) GetConditionalBreakpoint(addr uint64) *ConditionalBreakpoint {
	d.bpMu.RLock()
	defer d.bpMu.RUnlock()
	return d.breakpoints[addr]
}

func (d *DebugZ80) SetWatchpoint(addr uint64) bool {
	d.wpMu.Lock()
	defer d.wpMu.Unlock()
	d.watchpoints[addr] = &Watchpoint{
		Type:      WatchWrite,
		Address:   addr,
		LastValue: d.cpu.bus.Read(uint16(addr)),
	}
	return true
}

func (d *DebugZ80) ClearWatchpoint(addr uint64) bool {
	d.wpMu.Lock()
	defer d.wpMu.Unlock()
	if _, ok := d.watchpoints[addr]; ok {
		delete(d.watchpoints, addr)
		return true
	}
	return false
}

func (d *DebugZ80) ClearAllWatchpoints() {
	d.wpMu.Lock()
	defer d.wpMu.Unlock()
	d.watchpoints = make(map[uint64]*Watchpoint)
}

func (d *DebugZ80) ListWatchpoints() []uint64 {
	d.wpMu.RLock()
	defer d.wpMu.RUnlock()
	result := make([]uint64, 0, len(d.watchpoints))
	for addr := range d.watchpoints {
		result = append(result, addr)
	}
	return result
}

func (d *DebugZ80) ReadMemory(addr uint64, size int) []byte {
	result := make([]byte, size)
	for i := range size {
		result[i] = d.cpu.bus.Read(uint16(addr) + uint16(i))
	}
	return result
}

func (d *DebugZ80) WriteMemory(addr uint64, data []byte) {
	for i, b := range data {
		d.cpu.bus.Write(uint16(addr)+uint16(i), b)
	}
}

func (d *DebugZ80) SetBreakpointChannel(ch chan<- BreakpointEvent, cpuID int) {
	d.bpChan = ch
	d.cpuID = cpuID
}

func (d *DebugZ80) LoadSymbols(path string) error {
	return d.symbols.Load(path)
}
