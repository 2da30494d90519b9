// spi_tf_test.go - exercises the TF-card command FSM over the SPI
// shift-RAM interface: the init handshake (CMD0/CMD55+ACMD41), a
// token-framed block read, and a block write fed across several
// shift-RAM loads.

package main

import (
	"os"
	"testing"
)

func newTestTFCard(t *testing.T) *SPITFCard {
	t.Helper()
	path := t.TempDir() + "/tf.img"
	if err := os.WriteFile(path, make([]byte, 4*tfBlockSize), 0o644); err != nil {
		t.Fatal(err)
	}
	card, err := NewSPITFCardFile(path)
	if err != nil {
		t.Fatalf("NewSPITFCardFile: %v", err)
	}
	return card
}

// sendCommand loads a 6-byte SD command frame into the write RAM and
// strobes the transaction-start bit with chip-select asserted.
func sendCommand(s *SPITFCard, cmd byte, arg uint32) {
	s.Write(0, 1) // assert CS
	s.Write(2, 0x40|cmd)
	s.Write(2, byte(arg>>24))
	s.Write(2, byte(arg>>16))
	s.Write(2, byte(arg>>8))
	s.Write(2, byte(arg))
	s.Write(2, 0x95) // CRC, unchecked
	s.Write(0, 1|1<<7)
}

func TestTFCardInitHandshake(t *testing.T) {
	s := newTestTFCard(t)
	defer s.Close()

	sendCommand(s, sdCmdGoIdle, 0)
	if got := s.Read(3); got != 0x01 {
		t.Fatalf("CMD0 R1 = 0x%02X, want 0x01 (idle)", got)
	}

	sendCommand(s, sdCmdAppCmd, 0)
	if got := s.Read(3); got != 0x01 {
		t.Fatalf("CMD55 R1 = 0x%02X, want 0x01", got)
	}
	sendCommand(s, sdAppCmdOpCond, 0)
	if got := s.Read(3); got != 0x00 {
		t.Fatalf("ACMD41 R1 = 0x%02X, want 0x00 (ready)", got)
	}
}

func TestTFCardBlockReadTokenFraming(t *testing.T) {
	s := newTestTFCard(t)
	defer s.Close()

	want := make([]byte, tfBlockSize)
	for i := range want {
		want[i] = byte(i * 7)
	}
	if _, err := s.file.WriteAt(want, 2*tfBlockSize); err != nil {
		t.Fatal(err)
	}

	sendCommand(s, sdCmdReadBlock, 2)
	if got := s.Read(3); got != 0x00 {
		t.Fatalf("CMD17 R1 = 0x%02X, want 0x00", got)
	}
	if got := s.Read(3); got != sdDataToken {
		t.Fatalf("data token = 0x%02X, want 0x%02X", got, sdDataToken)
	}
	for i := range want {
		if got := s.Read(3); got != want[i] {
			t.Fatalf("payload byte %d = 0x%02X, want 0x%02X", i, got, want[i])
		}
	}
	// the reply drains to 0xFF once the CRC trailer is exhausted
	s.Read(3)
	s.Read(3)
	if got := s.Read(3); got != 0xFF {
		t.Errorf("post-reply read = 0x%02X, want 0xFF", got)
	}
}

func TestTFCardBlockWriteAcrossShiftRAMLoads(t *testing.T) {
	s := newTestTFCard(t)
	defer s.Close()

	payload := make([]byte, tfBlockSize)
	for i := range payload {
		payload[i] = byte(255 - i%251)
	}

	sendCommand(s, sdCmdWriteBlock, 1)
	if got := s.Read(3); got != 0x00 {
		t.Fatalf("CMD24 R1 = 0x%02X, want 0x00", got)
	}

	// data token in its own load, then the payload in 16-byte bursts
	s.Write(2, sdDataToken)
	s.Write(0, 1|1<<7)
	for off := 0; off < tfBlockSize; off += spiShiftRAMSize {
		for _, b := range payload[off : off+spiShiftRAMSize] {
			s.Write(2, b)
		}
		s.Write(0, 1|1<<7)
	}

	got := make([]byte, tfBlockSize)
	if _, err := s.file.ReadAt(got, 1*tfBlockSize); err != nil {
		t.Fatal(err)
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("backing file byte %d = 0x%02X, want 0x%02X", i, got[i], payload[i])
		}
	}
	if s.state != sdIdle {
		t.Errorf("state = %v after write completed, want sdIdle", s.state)
	}
}
