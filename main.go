// main.go - CLI entrypoint: wires flag-parsed image paths into a
// Machine and drives its step loop headlessly. A GUI frontend would
// hook NeedRender; this entrypoint just keeps ticking.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

func main() {
	romPath := flag.String("rom", "", "NOR flash ROM image path (required)")
	eepromPath := flag.String("eeprom", "", "I2C EEPROM backing image path")
	tfPath := flag.String("tf", "", "TF/SD card disk image path")
	cfPath := flag.String("cf", "", "CompactFlash disk image path")
	uprogPath := flag.String("uprog", "", "user program to patch into the flash's OS page")
	hostfsRoot := flag.String("hostfs", "", "host directory to expose to the guest over the host-FS bridge")
	symbolMap := flag.String("map", "", "debugger symbol map file")
	debug := flag.Bool("debug", false, "start paused under debugger control")
	gdbAddr := flag.String("gdb-addr", "", "listen address for the GDB remote stub (e.g. 127.0.0.1:2159); empty disables it")
	noAudio := flag.Bool("no-audio", false, "run without opening a host audio device")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: vela8 -rom image.bin [options]\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *romPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg := MachineConfig{
		ROMPath:        *romPath,
		UserProgPath:   *uprogPath,
		EEPROMPath:     *eepromPath,
		CFImagePath:    *cfPath,
		TFImagePath:    *tfPath,
		HostFSRoot:     *hostfsRoot,
		AutoExitOnZero: true,
		DisableAudio:   *noAudio,
	}

	m, err := NewMachine(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vela8: %v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	dbg := NewDebugZ80(m.CPU(), m)
	if *symbolMap != "" {
		if err := dbg.LoadSymbols(*symbolMap); err != nil {
			fmt.Fprintf(os.Stderr, "vela8: symbol map: %v\n", err)
		}
	}

	if *gdbAddr != "" {
		stub, err := NewGDBStub(dbg, *gdbAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "vela8: gdb stub: %v\n", err)
			os.Exit(1)
		}
		defer stub.Close()
		go stub.ServeForever()
	}

	if *debug {
		// Start paused: execution is driven by the debugger (GDB stub
		// or monitor) from here on, so main just waits for shutdown.
		dbg.Freeze()
		for !m.ShouldExit() {
			time.Sleep(50 * time.Millisecond)
		}
		return
	}

	for !m.ShouldExit() {
		m.Step()
		m.NeedRender() // consumed so a GUI frontend dropped in later sees fresh vblank edges
	}
}
