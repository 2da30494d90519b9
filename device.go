// device.go - uniform device contract shared by every hardware model.

package main

// Region describes one address-mapped window (memory or IO) owned by a
// device. Size is in bytes; Read/Write receive the *offset* within the
// region, not the absolute address. DebugRead, when non-nil, lets the
// debugger's memory inspector peek registers without the side effects
// a real Read carries; it falls back to Read when nil.
type Region struct {
	Size      int
	Read      func(offset uint32) byte
	Write     func(offset uint32, value byte)
	DebugRead func(offset uint32) byte
}

// Device is the contract every hardware model implements. A device may
// own a Mem region, an IO region, neither, or both. Reset is optional;
// nil means the device has no reset behavior of its own.
type Device struct {
	Name  string
	Mem   *Region
	IO    *Region
	Reset func()
}

func (d *Device) debugReadMem(offset uint32) byte {
	if d.Mem == nil {
		return 0
	}
	if d.Mem.DebugRead != nil {
		return d.Mem.DebugRead(offset)
	}
	return d.Mem.Read(offset)
}

func (d *Device) resetIfPresent() {
	if d.Reset != nil {
		d.Reset()
	}
}
