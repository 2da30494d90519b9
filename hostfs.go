// hostfs.go - the host filesystem bridge: a 16-register IO device that
// lets the guest open, read, write, and enumerate files on the host,
// confined to a single root directory. Status codes and the 16-char
// name limit follow the ZOS VFS conventions the guest OS expects.
package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ZOS-style status codes.
const (
	hostfsSuccess        = 0x00
	hostfsFailure        = 0x01
	hostfsNoSuchEntry    = 0x04
	hostfsCannotRegister = 0x14
	hostfsNoMoreEntries  = 0x15
	hostfsPending        = 0xFF
)

// Command numbers, per the canonical register-map ordering.
const (
	hostfsOpWhoami = iota
	hostfsOpOpen
	hostfsOpStat
	hostfsOpRead
	hostfsOpWrite
	hostfsOpClose
	hostfsOpOpendir
	hostfsOpReaddir
	hostfsOpMkdir
	hostfsOpRm
	hostfsOpLast = hostfsOpRm
)

// argument/result register indices
const (
	hostfsRegArg0Lo = iota
	hostfsRegArg0Hi
	hostfsRegArg1Lo
	hostfsRegArg1Hi
	hostfsRegArg2Lo
	hostfsRegArg2Hi
	hostfsRegFlags
	hostfsRegFD
	hostfsRegResultLo
	hostfsRegResultHi
	hostfsRegStatus
	hostfsRegCmd = 0xF
)

const hostfsMaxOpenFiles = 256
const hostfsMaxNameLength = 16
const hostfsIdentity = 1 // "this is a real host filesystem, not a ramdisk"

// field offsets within the guest OS's opened-file descriptor structure,
// which READ/WRITE address indirectly through guest memory
const (
	zosFDOffsetField = 8  // 32-bit little-endian file offset
	zosFDUserField   = 12 // this bridge's descriptor-table index
)

// hostfsDescriptor is one open-entry slot: either a file handle or a
// directory listing, never both.
type hostfsDescriptor struct {
	inUse bool
	isDir bool
	name  [hostfsMaxNameLength]byte
	path  string

	file *os.File

	entries []os.DirEntry
	dirIdx  int
}

// HostFS confines all guest-visible paths under root.
type HostFS struct {
	root string
	mem  *MemoryOp

	regs [16]byte

	descriptors [hostfsMaxOpenFiles]hostfsDescriptor
}

func NewHostFS(root string, mem *MemoryOp) *HostFS {
	return &HostFS{root: filepath.Clean(root), mem: mem}
}

// confine resolves a guest-supplied slash-separated path against root,
// walking it segment by segment and treating ".." as a pop rather than
// relying on lexical cleaning: a ".." with nothing left to pop is an
// escape attempt and fails closed, even before any file is touched.
func (h *HostFS) confine(guestPath string) (string, bool) {
	guestPath = strings.TrimPrefix(guestPath, "/")
	segments := strings.Split(guestPath, "/")
	stack := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(stack) == 0 {
				return "", false
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, seg)
		}
	}
	rel := strings.Join(stack, string(filepath.Separator))
	full := filepath.Join(h.root, rel)
	if full != h.root && !strings.HasPrefix(full, h.root+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}

func u16(lo, hi byte) uint16 { return uint16(lo) | uint16(hi)<<8 }

func (h *HostFS) setResult16(v uint16) {
	h.regs[hostfsRegResultLo] = byte(v)
	h.regs[hostfsRegResultHi] = byte(v >> 8)
}

func (h *HostFS) freeDescriptor() (int, bool) {
	for i := range h.descriptors {
		if !h.descriptors[i].inUse {
			return i, true
		}
	}
	return 0, false
}

// openFlags decodes the guest's flags byte: bits 0-1 access mode
// (0=RDONLY,1=WRONLY,2=RDWR), bit 2 CREATE, bit 3 TRUNCATE, bit 4 APPEND.
func openFlags(guest byte) int {
	var f int
	switch guest & 0x3 {
	case 0:
		f = os.O_RDONLY
	case 1:
		f = os.O_WRONLY
	case 2:
		f = os.O_RDWR
	}
	if guest&(1<<2) != 0 {
		f |= os.O_CREATE
	}
	if guest&(1<<3) != 0 {
		f |= os.O_TRUNC
	}
	if guest&(1<<4) != 0 {
		f |= os.O_APPEND
	}
	return f
}

func (h *HostFS) dispatch(op byte) {
	switch op {
	case hostfsOpWhoami:
		h.regs[hostfsRegResultLo] = hostfsIdentity
		h.regs[hostfsRegStatus] = hostfsSuccess
	case hostfsOpOpen:
		h.doOpen()
	case hostfsOpClose:
		h.doClose()
	case hostfsOpStat:
		h.doStat()
	case hostfsOpRead:
		h.doReadWrite(true)
	case hostfsOpWrite:
		h.doReadWrite(false)
	case hostfsOpOpendir:
		h.doOpendir()
	case hostfsOpReaddir:
		h.doReaddir()
	case hostfsOpMkdir:
		h.doMkdir()
	case hostfsOpRm:
		h.doRm()
	default:
		h.regs[hostfsRegStatus] = hostfsFailure
	}
}

func (h *HostFS) doOpen() {
	ptr := u16(h.regs[hostfsRegArg0Lo], h.regs[hostfsRegArg0Hi])
	path := h.mem.ReadCString(ptr, 255)
	full, ok := h.confine(path)
	if !ok {
		h.regs[hostfsRegStatus] = hostfsNoSuchEntry
		return
	}
	flags := openFlags(h.regs[hostfsRegFlags])
	info, err := os.Stat(full)
	if err != nil && flags&os.O_CREATE == 0 {
		h.regs[hostfsRegStatus] = hostfsNoSuchEntry
		return
	}
	// a path naming a directory silently becomes an opendir; the guest
	// learns which it got from the result register
	if err == nil && info.IsDir() {
		h.openDirAt(full)
		return
	}
	idx, ok := h.freeDescriptor()
	if !ok {
		h.regs[hostfsRegStatus] = hostfsCannotRegister
		return
	}
	f, err := os.OpenFile(full, flags, 0o644)
	if err != nil {
		h.regs[hostfsRegStatus] = hostfsNoSuchEntry
		return
	}
	d := &h.descriptors[idx]
	*d = hostfsDescriptor{inUse: true, path: full, file: f}
	copy(d.name[:], filepath.Base(full))
	h.regs[hostfsRegFD] = byte(idx)
	h.regs[hostfsRegResultLo] = 0 // opened a file
	h.regs[hostfsRegStatus] = hostfsSuccess
}

func (h *HostFS) doClose() {
	idx := int(h.regs[hostfsRegFD])
	if idx >= hostfsMaxOpenFiles || !h.descriptors[idx].inUse {
		h.regs[hostfsRegStatus] = hostfsFailure
		return
	}
	if !h.descriptors[idx].isDir {
		h.descriptors[idx].file.Close()
	}
	h.descriptors[idx] = hostfsDescriptor{}
	h.regs[hostfsRegStatus] = hostfsSuccess
}

func (h *HostFS) doStat() {
	idx := int(h.regs[hostfsRegFD])
	if idx >= hostfsMaxOpenFiles || !h.descriptors[idx].inUse {
		h.regs[hostfsRegStatus] = hostfsFailure
		return
	}
	d := &h.descriptors[idx]
	var info os.FileInfo
	var err error
	if d.isDir {
		info, err = os.Stat(d.path)
	} else {
		info, err = d.file.Stat()
	}
	if err != nil {
		h.regs[hostfsRegStatus] = hostfsFailure
		return
	}
	dst := u16(h.regs[hostfsRegArg1Lo], h.regs[hostfsRegArg1Hi])
	size := uint32(info.Size())
	buf := make([]byte, 0, 4+8+hostfsMaxNameLength)
	buf = append(buf, byte(size), byte(size>>8), byte(size>>16), byte(size>>24))
	buf = append(buf, bcdDate(info.ModTime())...)
	buf = append(buf, h.descriptors[idx].name[:]...)
	h.mem.WriteBytes(dst, buf)
	h.regs[hostfsRegStatus] = hostfsSuccess
}

// bcdDate packs a timestamp into the guest OS's 8-byte BCD date layout:
// century, year, month, day, weekday, hours, minutes, seconds.
func bcdDate(t time.Time) []byte {
	return []byte{
		toBCD(t.Year() / 100),
		toBCD(t.Year() % 100),
		toBCD(int(t.Month())),
		toBCD(t.Day()),
		toBCD(int(t.Weekday()) + 1),
		toBCD(t.Hour()),
		toBCD(t.Minute()),
		toBCD(t.Second()),
	}
}

// seekFile positions file at the 32-bit offset held inside the guest's
// descriptor structure.
func (h *HostFS) seekFile(structAddr uint16, file *os.File) error {
	off := h.mem.ReadBytes(structAddr+zosFDOffsetField, 4)
	seekTo := int64(off[0]) | int64(off[1])<<8 | int64(off[2])<<16 | int64(off[3])<<24
	_, err := file.Seek(seekTo, 0)
	return err
}

// doReadWrite takes the guest address of an opened-file descriptor
// structure, pulls the bridge descriptor index and the 32-bit file
// offset out of it, seeks there, and copies length bytes in 1 KiB
// chunks between the file and the guest buffer through the memory
// facade. The guest OS owns the structure's offset field; it is read
// each call, never written back.
func (h *HostFS) doReadWrite(isRead bool) {
	structAddr := u16(h.regs[hostfsRegArg0Lo], h.regs[hostfsRegArg0Hi])
	bufPtr := u16(h.regs[hostfsRegArg1Lo], h.regs[hostfsRegArg1Hi])
	length := int(u16(h.regs[hostfsRegArg2Lo], h.regs[hostfsRegArg2Hi]))

	idx := int(h.mem.ReadByte(structAddr + zosFDUserField))
	if idx >= hostfsMaxOpenFiles || !h.descriptors[idx].inUse || h.descriptors[idx].isDir {
		h.regs[hostfsRegStatus] = hostfsFailure
		return
	}
	f := h.descriptors[idx].file
	if err := h.seekFile(structAddr, f); err != nil {
		h.regs[hostfsRegStatus] = hostfsFailure
		return
	}

	const chunk = 1024
	done := 0
	for done < length {
		n := length - done
		if n > chunk {
			n = chunk
		}
		if isRead {
			tmp := make([]byte, n)
			r, err := f.Read(tmp)
			if r > 0 {
				h.mem.WriteBytes(bufPtr+uint16(done), tmp[:r])
			}
			done += r
			if err != nil || r < n {
				break
			}
		} else {
			tmp := h.mem.ReadBytes(bufPtr+uint16(done), n)
			w, err := f.Write(tmp)
			done += w
			if err != nil {
				break
			}
		}
	}
	h.setResult16(uint16(done))
	h.regs[hostfsRegStatus] = hostfsSuccess
}

func (h *HostFS) doOpendir() {
	ptr := u16(h.regs[hostfsRegArg0Lo], h.regs[hostfsRegArg0Hi])
	path := h.mem.ReadCString(ptr, 255)
	full, ok := h.confine(path)
	if !ok {
		h.regs[hostfsRegStatus] = hostfsNoSuchEntry
		return
	}
	h.openDirAt(full)
}

func (h *HostFS) openDirAt(full string) {
	entries, err := os.ReadDir(full)
	if err != nil {
		h.regs[hostfsRegStatus] = hostfsNoSuchEntry
		return
	}
	idx, ok := h.freeDescriptor()
	if !ok {
		h.regs[hostfsRegStatus] = hostfsCannotRegister
		return
	}
	d := &h.descriptors[idx]
	*d = hostfsDescriptor{inUse: true, isDir: true, path: full, entries: entries}
	copy(d.name[:], filepath.Base(full))
	h.regs[hostfsRegFD] = byte(idx)
	h.regs[hostfsRegResultLo] = 1 // opened a directory
	h.regs[hostfsRegStatus] = hostfsSuccess
}

func (h *HostFS) doReaddir() {
	idx := int(h.regs[hostfsRegFD])
	if idx >= hostfsMaxOpenFiles || !h.descriptors[idx].inUse || !h.descriptors[idx].isDir {
		h.regs[hostfsRegStatus] = hostfsFailure
		return
	}
	dir := &h.descriptors[idx]
	var name string
	for name == "" {
		if dir.dirIdx >= len(dir.entries) {
			h.regs[hostfsRegStatus] = hostfsNoMoreEntries
			return
		}
		e := dir.entries[dir.dirIdx]
		dir.dirIdx++
		// only regular files and directories are visible to the guest
		if e.IsDir() || e.Type().IsRegular() {
			name = e.Name()
		}
	}
	dst := u16(h.regs[hostfsRegArg1Lo], h.regs[hostfsRegArg1Hi])
	var buf [hostfsMaxNameLength]byte
	copy(buf[:], name)
	h.mem.WriteBytes(dst, buf[:])
	h.regs[hostfsRegStatus] = hostfsSuccess
}

func (h *HostFS) doMkdir() {
	ptr := u16(h.regs[hostfsRegArg0Lo], h.regs[hostfsRegArg0Hi])
	path := h.mem.ReadCString(ptr, 255)
	full, ok := h.confine(path)
	if !ok {
		h.regs[hostfsRegStatus] = hostfsNoSuchEntry
		return
	}
	if err := os.Mkdir(full, 0o755); err != nil {
		h.regs[hostfsRegStatus] = hostfsFailure
		return
	}
	h.regs[hostfsRegStatus] = hostfsSuccess
}

func (h *HostFS) doRm() {
	ptr := u16(h.regs[hostfsRegArg0Lo], h.regs[hostfsRegArg0Hi])
	path := h.mem.ReadCString(ptr, 255)
	full, ok := h.confine(path)
	if !ok {
		h.regs[hostfsRegStatus] = hostfsNoSuchEntry
		return
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			h.regs[hostfsRegStatus] = hostfsNoSuchEntry
		} else {
			h.regs[hostfsRegStatus] = hostfsFailure
		}
		return
	}
	h.regs[hostfsRegStatus] = hostfsSuccess
}

func (h *HostFS) Read(offset uint32) byte {
	if offset < uint32(len(h.regs)) {
		return h.regs[offset]
	}
	return 0
}

func (h *HostFS) Write(offset uint32, value byte) {
	if offset == hostfsRegCmd && value <= hostfsOpLast {
		h.regs[hostfsRegStatus] = hostfsPending
		h.dispatch(value)
		return
	}
	if offset < uint32(len(h.regs)) {
		h.regs[offset] = value
	}
}

func (h *HostFS) AsDevice() *Device {
	return &Device{
		Name: "hostfs",
		IO: &Region{
			Size:  16,
			Read:  h.Read,
			Write: h.Write,
		},
		Reset: func() {
			for i := range h.descriptors {
				if h.descriptors[i].inUse && !h.descriptors[i].isDir {
					h.descriptors[i].file.Close()
				}
			}
			h.descriptors = [hostfsMaxOpenFiles]hostfsDescriptor{}
			h.regs = [16]byte{}
		},
	}
}
