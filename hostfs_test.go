// hostfs_test.go - exercises the host-FS bridge's path confinement
// (".." escape attempts must fail closed) and a basic
// open/write/read/close round trip, driven entirely through its 16
// register IO window the way the guest would.

package main

import (
	"os"
	"path/filepath"
	"testing"
)

func fakeMemoryOp(size int) (*MemoryOp, []byte) {
	buf := make([]byte, size)
	return &MemoryOp{
		ReadByte:  func(addr uint16) byte { return buf[addr] },
		WriteByte: func(addr uint16, v byte) { buf[addr] = v },
	}, buf
}

func TestHostFSConfinementEscapeIsRejected(t *testing.T) {
	root := t.TempDir()
	mem, buf := fakeMemoryOp(4096)
	h := NewHostFS(root, mem)

	path := "../../etc/passwd"
	copy(buf[0x10:], path)
	buf[0x10+len(path)] = 0

	h.regs[hostfsRegArg0Lo] = 0x10
	h.regs[hostfsRegArg0Hi] = 0x00
	h.regs[hostfsRegFlags] = 0
	h.Write(hostfsRegCmd, hostfsOpOpen)

	if got := h.regs[hostfsRegStatus]; got != hostfsNoSuchEntry {
		t.Fatalf("status = 0x%02X, want hostfsNoSuchEntry (0x%02X)", got, hostfsNoSuchEntry)
	}
	for i, d := range h.descriptors {
		if d.inUse {
			t.Fatalf("descriptor %d allocated for an escape attempt", i)
		}
	}
}

func TestHostFSConfineWalksDotDotWithinRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	mem, _ := fakeMemoryOp(4096)
	h := NewHostFS(root, mem)

	full, ok := h.confine("sub/../sub/../file.txt")
	if !ok {
		t.Fatal("confine rejected an in-root path that merely walks through ..")
	}
	if want := filepath.Join(root, "file.txt"); full != want {
		t.Errorf("confine() = %q, want %q", full, want)
	}
}

// putFDStruct lays a guest opened-file descriptor structure into fake
// memory: a 32-bit offset at +8 and the bridge descriptor index at +12.
func putFDStruct(buf []byte, at uint16, fd byte, offset uint32) {
	buf[at+zosFDOffsetField] = byte(offset)
	buf[at+zosFDOffsetField+1] = byte(offset >> 8)
	buf[at+zosFDOffsetField+2] = byte(offset >> 16)
	buf[at+zosFDOffsetField+3] = byte(offset >> 24)
	buf[at+zosFDUserField] = fd
}

func TestHostFSOpenWriteReadClose(t *testing.T) {
	root := t.TempDir()
	mem, buf := fakeMemoryOp(4096)
	h := NewHostFS(root, mem)

	name := "greeting.txt"
	copy(buf[0x10:], name)
	buf[0x10+len(name)] = 0

	h.regs[hostfsRegArg0Lo] = 0x10
	h.regs[hostfsRegArg0Hi] = 0x00
	h.regs[hostfsRegFlags] = byte(0x1 | 0x4) // WRONLY|CREATE
	h.Write(hostfsRegCmd, hostfsOpOpen)
	if h.regs[hostfsRegStatus] != hostfsSuccess {
		t.Fatalf("open status = 0x%02X, want success", h.regs[hostfsRegStatus])
	}
	fd := h.regs[hostfsRegFD]

	payload := "hello"
	copy(buf[0x100:], payload)
	const structAddr = 0x300
	putFDStruct(buf, structAddr, fd, 0)
	h.regs[hostfsRegArg0Lo], h.regs[hostfsRegArg0Hi] = 0x00, 0x03
	h.regs[hostfsRegArg1Lo], h.regs[hostfsRegArg1Hi] = 0x00, 0x01
	h.regs[hostfsRegArg2Lo], h.regs[hostfsRegArg2Hi] = byte(len(payload)), 0
	h.Write(hostfsRegCmd, hostfsOpWrite)
	if h.regs[hostfsRegStatus] != hostfsSuccess {
		t.Fatalf("write status = 0x%02X, want success", h.regs[hostfsRegStatus])
	}
	if got := u16(h.regs[hostfsRegResultLo], h.regs[hostfsRegResultHi]); got != uint16(len(payload)) {
		t.Errorf("write result = %d bytes, want %d", got, len(payload))
	}

	h.regs[hostfsRegFD] = fd
	h.Write(hostfsRegCmd, hostfsOpClose)
	if h.regs[hostfsRegStatus] != hostfsSuccess {
		t.Fatalf("close status = 0x%02X, want success", h.regs[hostfsRegStatus])
	}

	got, err := os.ReadFile(filepath.Join(root, name))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != payload {
		t.Errorf("file contents = %q, want %q", got, payload)
	}
}

func TestHostFSReadSeeksToStructOffset(t *testing.T) {
	root := t.TempDir()
	name := "digits.txt"
	if err := os.WriteFile(filepath.Join(root, name), []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	mem, buf := fakeMemoryOp(4096)
	h := NewHostFS(root, mem)

	copy(buf[0x10:], name)
	buf[0x10+len(name)] = 0
	h.regs[hostfsRegArg0Lo] = 0x10
	h.regs[hostfsRegFlags] = 0 // RDONLY
	h.Write(hostfsRegCmd, hostfsOpOpen)
	if h.regs[hostfsRegStatus] != hostfsSuccess {
		t.Fatalf("open status = 0x%02X", h.regs[hostfsRegStatus])
	}
	fd := h.regs[hostfsRegFD]

	const structAddr = 0x300
	readAt := func(offset uint32, n byte) string {
		putFDStruct(buf, structAddr, fd, offset)
		h.regs[hostfsRegArg0Lo], h.regs[hostfsRegArg0Hi] = 0x00, 0x03
		h.regs[hostfsRegArg1Lo], h.regs[hostfsRegArg1Hi] = 0x00, 0x01
		h.regs[hostfsRegArg2Lo], h.regs[hostfsRegArg2Hi] = n, 0
		h.Write(hostfsRegCmd, hostfsOpRead)
		if h.regs[hostfsRegStatus] != hostfsSuccess {
			t.Fatalf("read status = 0x%02X", h.regs[hostfsRegStatus])
		}
		got := int(u16(h.regs[hostfsRegResultLo], h.regs[hostfsRegResultHi]))
		return string(buf[0x100 : 0x100+got])
	}

	if got := readAt(4, 3); got != "456" {
		t.Errorf("read at offset 4 = %q, want %q", got, "456")
	}
	// the offset field is re-read per call, never advanced by the bridge
	if got := readAt(4, 3); got != "456" {
		t.Errorf("repeated read at offset 4 = %q, want %q", got, "456")
	}
	if got := readAt(0, 10); got != "0123456789" {
		t.Errorf("read at offset 0 = %q, want full contents", got)
	}
	// reading past end-of-file returns the short count
	if got := readAt(8, 10); got != "89" {
		t.Errorf("read at offset 8 = %q, want %q", got, "89")
	}
}

func TestHostFSStatLayout(t *testing.T) {
	root := t.TempDir()
	name := "blob.bin"
	if err := os.WriteFile(filepath.Join(root, name), make([]byte, 0x1234), 0o644); err != nil {
		t.Fatal(err)
	}
	mem, buf := fakeMemoryOp(4096)
	h := NewHostFS(root, mem)

	copy(buf[0x10:], name)
	buf[0x10+len(name)] = 0
	h.regs[hostfsRegArg0Lo] = 0x10
	h.regs[hostfsRegFlags] = 0 // RDONLY
	h.Write(hostfsRegCmd, hostfsOpOpen)
	if h.regs[hostfsRegStatus] != hostfsSuccess {
		t.Fatalf("open status = 0x%02X", h.regs[hostfsRegStatus])
	}

	const dst = 0x200
	h.regs[hostfsRegArg1Lo], h.regs[hostfsRegArg1Hi] = 0x00, 0x02
	h.Write(hostfsRegCmd, hostfsOpStat)
	if h.regs[hostfsRegStatus] != hostfsSuccess {
		t.Fatalf("stat status = 0x%02X", h.regs[hostfsRegStatus])
	}

	size := uint32(buf[dst]) | uint32(buf[dst+1])<<8 | uint32(buf[dst+2])<<16 | uint32(buf[dst+3])<<24
	if size != 0x1234 {
		t.Errorf("stat size = 0x%X, want 0x1234", size)
	}
	// 8 BCD date bytes sit between the size and the 16-char name.
	gotName := string(buf[dst+12 : dst+12+len(name)])
	if gotName != name {
		t.Errorf("stat name = %q, want %q", gotName, name)
	}
}

func TestHostFSReaddirSkipsSpecialEntries(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(root, "dir"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("nowhere", filepath.Join(root, "dangling")); err != nil {
		t.Skipf("symlink: %v", err)
	}
	mem, buf := fakeMemoryOp(4096)
	h := NewHostFS(root, mem)

	buf[0x10] = '/'
	buf[0x11] = 0
	h.regs[hostfsRegArg0Lo] = 0x10
	h.Write(hostfsRegCmd, hostfsOpOpendir)
	if h.regs[hostfsRegStatus] != hostfsSuccess {
		t.Fatalf("opendir status = 0x%02X", h.regs[hostfsRegStatus])
	}

	var names []string
	for {
		h.regs[hostfsRegArg1Lo], h.regs[hostfsRegArg1Hi] = 0x00, 0x02
		h.Write(hostfsRegCmd, hostfsOpReaddir)
		if h.regs[hostfsRegStatus] == hostfsNoMoreEntries {
			break
		}
		if h.regs[hostfsRegStatus] != hostfsSuccess {
			t.Fatalf("readdir status = 0x%02X", h.regs[hostfsRegStatus])
		}
		raw := buf[0x200 : 0x200+hostfsMaxNameLength]
		n := 0
		for n < len(raw) && raw[n] != 0 {
			n++
		}
		names = append(names, string(raw[:n]))
	}

	if len(names) != 2 {
		t.Fatalf("readdir returned %v, want just the regular file and the directory", names)
	}
	seen := map[string]bool{}
	for _, n := range names {
		seen[n] = true
	}
	if !seen["a.txt"] || !seen["dir"] {
		t.Errorf("readdir returned %v, want a.txt and dir", names)
	}
}
