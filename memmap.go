// memmap.go - physical memory address map: 256 slots of 16 KiB covering
// the 4 MiB physical space. Registration is rejected on overlap or
// misalignment; the map is sealed once the machine finishes wiring.

package main

import (
	"fmt"
	"log"
	"sync/atomic"
)

const (
	pageSize  = 16 * 1024
	pageCount = 256 // 256 * 16KiB = 4 MiB physical space
)

type memSlot struct {
	dev      *Device
	basePage int
}

// AddressMap is the 22-bit physical memory space: memory accesses from
// the CPU (after MMU translation) and from DMA/host-FS (direct physical,
// bypassing the MMU) both route through here.
type AddressMap struct {
	slots  [pageCount]memSlot
	sealed atomic.Bool
}

func NewAddressMap() *AddressMap {
	return &AddressMap{}
}

// Seal freezes registration. Devices register once at machine init;
// any MapMemory call after Seal panics.
func (m *AddressMap) Seal() { m.sealed.Store(true) }

// MapMemory installs dev's memory region at physical byte address base.
// base must be 16 KiB aligned; the region must not cross the 4 MiB space
// or overlap an already-installed device. Failures are logged and
// returned; the caller decides whether that failure is fatal or just
// means the device stays unmapped.
func (m *AddressMap) MapMemory(dev *Device, base uint32) error {
	if m.sealed.Load() {
		panic("memmap: MapMemory after Seal")
	}
	if dev.Mem == nil || dev.Mem.Size <= 0 {
		err := fmt.Errorf("memmap: device %q has no memory region to map", dev.Name)
		log.Printf("%v", err)
		return err
	}
	if base%pageSize != 0 {
		err := fmt.Errorf("memmap: device %q base 0x%06X not 16KiB aligned", dev.Name, base)
		log.Printf("%v", err)
		return err
	}
	basePage := int(base / pageSize)
	pages := (dev.Mem.Size + pageSize - 1) / pageSize
	if basePage+pages > pageCount {
		err := fmt.Errorf("memmap: device %q region crosses end of physical space", dev.Name)
		log.Printf("%v", err)
		return err
	}
	for p := basePage; p < basePage+pages; p++ {
		if m.slots[p].dev != nil {
			err := fmt.Errorf("memmap: device %q overlaps %q at page %d", dev.Name, m.slots[p].dev.Name, p)
			log.Printf("%v", err)
			return err
		}
	}
	for p := basePage; p < basePage+pages; p++ {
		m.slots[p] = memSlot{dev: dev, basePage: basePage}
	}
	return nil
}

// Read8 returns the byte at physical address phys, or 0 if unmapped.
func (m *AddressMap) Read8(phys uint32) byte {
	slot := &m.slots[(phys/pageSize)%pageCount]
	if slot.dev == nil {
		return 0
	}
	offset := phys - uint32(slot.basePage*pageSize)
	return slot.dev.Mem.Read(offset)
}

// Write8 writes the byte at physical address phys; a no-op if unmapped.
func (m *AddressMap) Write8(phys uint32, value byte) {
	slot := &m.slots[(phys/pageSize)%pageCount]
	if slot.dev == nil {
		return
	}
	offset := phys - uint32(slot.basePage*pageSize)
	slot.dev.Mem.Write(offset, value)
}

// DebugRead8 is the non-side-effecting counterpart used by the debugger's
// memory inspector.
func (m *AddressMap) DebugRead8(phys uint32) byte {
	slot := &m.slots[(phys/pageSize)%pageCount]
	if slot.dev == nil {
		return 0
	}
	offset := phys - uint32(slot.basePage*pageSize)
	return slot.dev.debugReadMem(offset)
}

// ResetDevices invokes Reset on every distinct installed device.
func (m *AddressMap) ResetDevices() {
	seen := make(map[*Device]bool)
	for _, s := range m.slots {
		if s.dev != nil && !seen[s.dev] {
			seen[s.dev] = true
			s.dev.resetIfPresent()
		}
	}
}
