// eeprom.go - I2C EEPROM slave (AT24C512-class), 64 KiB, page-write
// wraparound, flushed to its backing file per 128-byte page on STOP.

package main

import (
	"fmt"
	"os"
)

const (
	eepromSize     = 64 * 1024
	eepromPageSize = 128
)

type EEPROM struct {
	data []byte
	file *os.File

	addr        uint16
	addrBytesIn int // 0, 1, or 2: address bytes received since START

	pageDirty bool
	pageBase  uint16
}

// NewEEPROM opens (creating if absent) a 64 KiB backing file at path.
func NewEEPROM(path string) (*EEPROM, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("eeprom: open backing file: %w", err)
	}
	if err := lockBackingFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("eeprom: %w", err)
	}
	e := &EEPROM{data: make([]byte, eepromSize), file: f}
	for i := range e.data {
		e.data[i] = 0xFF
	}
	n, err := f.ReadAt(e.data, 0)
	if err != nil && n == 0 {
		// fresh/short file: leave erased defaults, write them out now.
		if _, werr := f.WriteAt(e.data, 0); werr != nil {
			return nil, fmt.Errorf("eeprom: initialize backing file: %w", werr)
		}
	}
	return e, nil
}

func (e *EEPROM) AsI2CDevice(addr byte) *I2CDevice {
	return &I2CDevice{
		Addr: addr,
		Start: func(write bool) bool {
			e.addrBytesIn = 0
			return true
		},
		Write: e.handleWrite,
		Read:  e.handleRead,
		Stop:  e.handleStop,
	}
}

func (e *EEPROM) handleWrite(b byte) bool {
	if e.addrBytesIn < 2 {
		if e.addrBytesIn == 0 {
			e.addr = uint16(b) << 8
		} else {
			e.addr |= uint16(b)
		}
		e.addrBytesIn++
		return true
	}
	pageBase := e.addr &^ (eepromPageSize - 1)
	offsetInPage := e.addr & (eepromPageSize - 1)
	e.data[pageBase+offsetInPage] = b
	e.pageDirty = true
	e.pageBase = pageBase
	offsetInPage = (offsetInPage + 1) % eepromPageSize
	e.addr = pageBase + offsetInPage
	return true
}

func (e *EEPROM) handleRead() byte {
	b := e.data[e.addr]
	e.addr++ // uint16 arithmetic wraps at the 64 KiB array size
	return b
}

func (e *EEPROM) handleStop() {
	if !e.pageDirty {
		return
	}
	page := e.data[e.pageBase : e.pageBase+eepromPageSize]
	if _, err := e.file.WriteAt(page, int64(e.pageBase)); err != nil {
		logHostIOError("eeprom", err)
	}
	e.pageDirty = false
}

func (e *EEPROM) Close() error {
	return e.file.Close()
}
