// errors.go - machine-wide error reporting policy: device handlers
// never return an error from the hot read/write path, they log one
// line and fall back to a default. These helpers keep that one-line
// shape consistent across devices.

package main

import "log"

// logHostIOError reports a steady-state backing-file failure (tier 4)
// and returns; no caller aborts. The TF card answers a failed block
// write with a write-error data token. EEPROM and CompactFlash callers
// leave guest-visible state as it is and signal nothing to the guest.
// CompactFlash also reports unusable sector addressing through it.
func logHostIOError(device string, err error) {
	log.Printf("%s: host I/O error: %v", device, err)
}

// logConfigError reports a setup failure that leaves the machine
// usable: logged, and the device (or, for the flash user-program
// address, the bad setting) is left out.
func logConfigError(device string, err error) {
	log.Printf("%s: configuration error: %v", device, err)
}
