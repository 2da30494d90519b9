// rtc.go - I2C battery-backed real-time clock (DS1307-class), 8 BCD
// registers adjusted by a stored offset from host time.

package main

import "time"

const rtcRegisterCount = 8

// register indices
const (
	rtcSeconds = iota
	rtcMinutes
	rtcHours
	rtcWeekday
	rtcDate
	rtcMonth
	rtcYear
	rtcControl
)

type RTC struct {
	regs [rtcRegisterCount]byte

	// offset is added to host time to produce guest time, so a guest
	// write to the time registers sticks for the rest of the session.
	offset time.Duration

	addr               int  // register index; auto-increments on write/read
	timeWritten        bool // set if any time register was written this transaction
	writeAwaitingIndex bool // true until the first byte of a write transaction sets addr
}

func NewRTC() *RTC {
	return &RTC{writeAwaitingIndex: true}
}

func (r *RTC) AsI2CDevice(addr byte) *I2CDevice {
	return &I2CDevice{
		Addr: addr,
		Start: func(write bool) bool {
			r.materialize()
			r.timeWritten = false
			if write {
				r.writeAwaitingIndex = true
			}
			return true
		},
		Write: r.handleWrite,
		Read:  r.handleRead,
		Stop:  r.handleStop,
	}
}

func toBCD(v int) byte {
	return byte((v/10)<<4 | (v % 10))
}

func fromBCD(v byte) int {
	return int(v>>4)*10 + int(v&0xF)
}

// materialize loads the current host time (shifted by the stored offset)
// into the register array in BCD, as if START always re-samples the
// clock.
func (r *RTC) materialize() {
	t := time.Now().Add(r.offset)
	r.regs[rtcSeconds] = toBCD(t.Second())
	r.regs[rtcMinutes] = toBCD(t.Minute())
	r.regs[rtcHours] = toBCD(t.Hour())
	r.regs[rtcWeekday] = toBCD(int(t.Weekday()) + 1)
	r.regs[rtcDate] = toBCD(t.Day())
	r.regs[rtcMonth] = toBCD(int(t.Month()))
	r.regs[rtcYear] = toBCD(t.Year() % 100)
}

func (r *RTC) handleWrite(b byte) bool {
	// First byte of a write transaction selects the auto-incrementing
	// register index; subsequent bytes write registers starting there.
	if r.writeAwaitingIndex {
		r.addr = int(b) % rtcRegisterCount
		r.writeAwaitingIndex = false
		return true
	}
	r.regs[r.addr] = b
	if r.addr <= rtcYear {
		r.timeWritten = true
	}
	r.addr = (r.addr + 1) % rtcRegisterCount
	return true
}

func (r *RTC) handleRead() byte {
	b := r.regs[r.addr]
	r.addr = (r.addr + 1) % rtcRegisterCount
	return b
}

func (r *RTC) handleStop() {
	r.writeAwaitingIndex = true
	if !r.timeWritten {
		return
	}
	written := time.Date(
		2000+fromBCD(r.regs[rtcYear]),
		time.Month(fromBCD(r.regs[rtcMonth])),
		fromBCD(r.regs[rtcDate]),
		fromBCD(r.regs[rtcHours]),
		fromBCD(r.regs[rtcMinutes]),
		fromBCD(r.regs[rtcSeconds]),
		0, time.Local)
	r.offset = written.Sub(time.Now())
	r.timeWritten = false
}
