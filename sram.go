// sram.go - plain byte-array memory device (Alliance AS6C4008-class SRAM).

package main

// SRAM is a flat, volatile byte array with no command protocol.
type SRAM struct {
	data []byte
}

func NewSRAM(size int) *SRAM {
	return &SRAM{data: make([]byte, size)}
}

func (s *SRAM) AsDevice() *Device {
	return &Device{
		Name: "sram",
		Mem: &Region{
			Size: len(s.data),
			Read: func(offset uint32) byte {
				return s.data[offset]
			},
			Write: func(offset uint32, value byte) {
				s.data[offset] = value
			},
		},
		Reset: func() {
			for i := range s.data {
				s.data[i] = 0
			}
		},
	}
}
