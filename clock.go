// clock.go - the nominal CPU clock used to convert device datasheet
// delays (µs/ms) into T-state counts for tick budgets.
// 10 MHz matches the machine this emulator targets; every device that
// arms a delay (flash, keyboard, video raster) derives its tick count
// from this single constant so the relative proportions stay correct
// even if a future machine variant runs at a different clock.

package main

const cpuClockHz = 10_000_000

func usToTStates(us float64) int {
	return int(us * cpuClockHz / 1_000_000)
}

func msToTStates(ms float64) int {
	return int(ms * cpuClockHz / 1_000)
}
