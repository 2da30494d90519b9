//go:build !(amd64 || arm64 || 386 || arm || riscv64 || loong64 || mipsle || mips64le || ppc64le || wasm)

package main

// vela8 packs multi-byte device registers (video scroll latches, DMA
// descriptors, the CF identity page) assuming little-endian byte order.
var _ = "vela8 requires a little-endian architecture" + 1
