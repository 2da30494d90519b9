// compactflash.go - CompactFlash storage device in True IDE mode:
// 8-register interface, LBA addressing, sector-buffer pump, synthesized
// identity page, command FSM.

package main

import (
	"fmt"
	"os"
)

const cfSectorSize = 512
const cfMinImageSize = 1024 * 1024

// IDE register offsets
const (
	cfRegData    = 0
	cfRegFeature = 1 // == error on read
	cfRegSecCnt  = 2
	cfRegLBA0    = 3
	cfRegLBA8    = 4
	cfRegLBA16   = 5
	cfRegLBA24   = 6
	cfRegCommand = 7 // == status on read
)

// IDE status bits
const (
	cfStatBusy = 1 << 7
	cfStatRDY  = 1 << 6
	cfStatDWF  = 1 << 5
	cfStatDSC  = 1 << 4
	cfStatDRQ  = 1 << 3
	cfStatCorr = 1 << 2
	cfStatIDX  = 1 << 1
	cfStatErr  = 1 << 0
)

// IDE commands
const (
	cfCmdNOP           = 0x00
	cfCmdRecal         = 0x10
	cfCmdReadSector    = 0x20
	cfCmdReadSectorNR  = 0x21
	cfCmdWriteSector   = 0x30
	cfCmdWriteSectorNR = 0x31
	cfCmdReadBuffer    = 0xE4
	cfCmdWriteBuffer   = 0xE8
	cfCmdIdentify      = 0xEC
	cfCmdSetFeature    = 0xEF
)

const cfErrIDNF = 1 << 4 // ID Not Found

type cfState int

const (
	cfIdle cfState = iota
	cfCmd
	cfDataIn
	cfDataOut
	cfDataError
)

type CompactFlash struct {
	file         *os.File
	totalSectors uint32

	state cfState

	status, secCnt, feature, errReg byte
	lba0, lba8, lba16, lba24        byte

	sectorBuf    [cfSectorSize]byte
	sectorBufIdx int
	secCur       int   // sectors transferred so far in the current command
	dataOfs      int64 // byte offset of the sector currently in the buffer; -1 invalid

	master  bool
	lbaMode bool

	identity [256]uint16
}

// NewCompactFlash opens (or creates) the image file at path. An image
// smaller than 1 MiB, a newly created one included, is extended to
// 1 MiB; it is not rejected.
func NewCompactFlash(path string) (*CompactFlash, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("compactflash: open image: %w", err)
	}
	if err := lockBackingFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("compactflash: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("compactflash: stat image: %w", err)
	}
	size := info.Size()
	if size < cfMinImageSize {
		if err := f.Truncate(cfMinImageSize); err != nil {
			f.Close()
			return nil, fmt.Errorf("compactflash: grow image to minimum size: %w", err)
		}
		size = cfMinImageSize
	}
	cf := &CompactFlash{
		file:         f,
		totalSectors: uint32((size + cfSectorSize - 1) / cfSectorSize),
		status:       cfStatRDY | cfStatDSC,
		lba24:        0xE0, // LBA mode, master
		master:       true,
		lbaMode:      true,
		dataOfs:      -1,
	}
	cf.buildIdentity()
	return cf, nil
}

func (cf *CompactFlash) buildIdentity() {
	cf.identity[0] = 0x848A // non-removable ATA device signature
	cf.identity[49] = 1 << 9 // LBA supported
	cf.identity[60] = uint16(cf.totalSectors & 0xFFFF)
	cf.identity[61] = uint16(cf.totalSectors >> 16)
}

// secCount folds the zero-means-256 register convention.
func (cf *CompactFlash) secCount() int {
	if cf.secCnt == 0 {
		return 256
	}
	return int(cf.secCnt)
}

// computeDataOfs derives the byte offset of the addressed sector, or -1
// when the addressing is unusable (slave select, CHS mode, out of range).
func (cf *CompactFlash) computeDataOfs() int64 {
	if !cf.master {
		logHostIOError("compactflash", fmt.Errorf("slave device does not support data access"))
		return -1
	}
	if !cf.lbaMode {
		logHostIOError("compactflash", fmt.Errorf("CHS mode not supported"))
		return -1
	}
	sector := uint32(cf.lba24&0x0F)<<24 | uint32(cf.lba16)<<16 |
		uint32(cf.lba8)<<8 | uint32(cf.lba0)
	if sector+uint32(cf.secCount()) > cf.totalSectors {
		logHostIOError("compactflash", fmt.Errorf("sector out of bounds: %d, cnt %d", sector, cf.secCount()))
		return -1
	}
	return int64(sector) * cfSectorSize
}

func (cf *CompactFlash) Read(offset uint32) byte {
	if !cf.master {
		return 0 // no slave device behind this socket
	}
	switch offset {
	case cfRegData:
		return cf.pumpRead()
	case cfRegFeature:
		return cf.errReg
	case cfRegSecCnt:
		return cf.secCnt
	case cfRegLBA0:
		return cf.lba0
	case cfRegLBA8:
		return cf.lba8
	case cfRegLBA16:
		return cf.lba16
	case cfRegLBA24:
		return cf.lba24
	case cfRegCommand:
		return cf.status
	}
	return 0
}

func (cf *CompactFlash) pumpRead() byte {
	if cf.state != cfDataOut {
		return 0
	}
	b := cf.sectorBuf[cf.sectorBufIdx]
	cf.sectorBufIdx = (cf.sectorBufIdx + 1) % cfSectorSize
	if cf.sectorBufIdx == 0 {
		cf.secCur++
		if cf.secCur < cf.secCount() {
			cf.dataOfs += cfSectorSize
			cf.loadSectorBuf()
		} else {
			cf.enterDataIdle()
		}
	}
	return b
}

func (cf *CompactFlash) loadSectorBuf() {
	if _, err := cf.file.ReadAt(cf.sectorBuf[:], cf.dataOfs); err != nil {
		logHostIOError("compactflash", err)
	}
}

func (cf *CompactFlash) Write(offset uint32, value byte) {
	switch offset {
	case cfRegData:
		cf.pumpWrite(value)
	case cfRegFeature:
		cf.feature = value
	case cfRegSecCnt:
		cf.secCnt = value
	case cfRegLBA0:
		cf.lba0 = value
	case cfRegLBA8:
		cf.lba8 = value
	case cfRegLBA16:
		cf.lba16 = value
	case cfRegLBA24:
		cf.lba24 = value
		cf.master = (value>>4)&1 == 0
		cf.lbaMode = (value>>6)&1 != 0
	case cfRegCommand:
		cf.execCommand(value)
	}
}

func (cf *CompactFlash) pumpWrite(value byte) {
	if cf.state != cfDataIn {
		return
	}
	cf.sectorBuf[cf.sectorBufIdx] = value
	cf.sectorBufIdx = (cf.sectorBufIdx + 1) % cfSectorSize
	if cf.sectorBufIdx == 0 {
		if _, err := cf.file.WriteAt(cf.sectorBuf[:], cf.dataOfs); err != nil {
			logHostIOError("compactflash", err)
		}
		cf.secCur++
		if cf.secCur < cf.secCount() {
			cf.dataOfs += cfSectorSize
		} else {
			cf.enterDataIdle()
		}
	}
}

func (cf *CompactFlash) execCommand(cmd byte) {
	if !cf.master {
		return // slave addressing reads/acts as 0; ignore commands
	}
	cf.status &^= cfStatErr
	cf.errReg = 0
	cf.state = cfCmd

	switch cmd {
	case cfCmdNOP, cfCmdSetFeature:
		cf.status &^= cfStatDRQ
	case cfCmdIdentify:
		for i := 0; i < 256; i++ {
			cf.sectorBuf[2*i] = byte(cf.identity[i])
			cf.sectorBuf[2*i+1] = byte(cf.identity[i] >> 8)
		}
		cf.secCnt = 1
		cf.enterDataOut(false)
	case cfCmdReadSector, cfCmdReadSectorNR:
		cf.dataOfs = cf.computeDataOfs()
		cf.enterDataOut(true)
	case cfCmdReadBuffer:
		// re-pumps the sector already in the buffer at the last offset
		cf.enterDataOut(true)
	case cfCmdWriteSector, cfCmdWriteSectorNR:
		cf.dataOfs = cf.computeDataOfs()
		cf.enterDataIn()
	case cfCmdWriteBuffer:
		cf.enterDataIn()
	}
}

func (cf *CompactFlash) enterDataOut(fromFile bool) {
	if fromFile && cf.dataOfs < 0 {
		cf.enterError()
		return
	}
	if fromFile {
		cf.loadSectorBuf()
	}
	cf.sectorBufIdx = 0
	cf.secCur = 0
	cf.state = cfDataOut
	cf.status = cfStatRDY | cfStatDSC | cfStatDRQ
}

func (cf *CompactFlash) enterDataIn() {
	if cf.dataOfs < 0 {
		cf.enterError()
		return
	}
	cf.sectorBufIdx = 0
	cf.secCur = 0
	cf.state = cfDataIn
	cf.status = cfStatRDY | cfStatDSC | cfStatDRQ
}

func (cf *CompactFlash) enterDataIdle() {
	cf.state = cfIdle
	cf.status &^= cfStatDRQ | cfStatBusy
	cf.status |= cfStatRDY | cfStatDSC
}

func (cf *CompactFlash) enterError() {
	cf.state = cfDataError
	cf.errReg = cfErrIDNF
	cf.status = cfStatRDY | cfStatDSC | cfStatErr
}

func (cf *CompactFlash) AsDevice() *Device {
	return &Device{
		Name: "compactflash",
		IO: &Region{
			Size:  8,
			Read:  cf.Read,
			Write: cf.Write,
		},
		Reset: func() {
			cf.state = cfIdle
			cf.status = cfStatRDY | cfStatDSC
			cf.sectorBufIdx = 0
			cf.secCur = 0
			cf.dataOfs = -1
			cf.lba24 = 0xE0
			cf.master = true
			cf.lbaMode = true
		},
	}
}

func (cf *CompactFlash) Close() error {
	return cf.file.Close()
}
