//go:build linux

package regmap

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"bcmio/core"
)

// BlockSize is the length of each mapped register window
const BlockSize = 4 * 1024

// Open maps the register file for bus from device. When device is
// /dev/gpiomem only the GPIO bus can be mapped and base is ignored.
// A zero base is detected from the device tree.
func Open(bus Bus, device string, base int64) (*Map, error) {
	offset := bus.Offset
	if device == "/dev/gpiomem" {
		if bus.Name != GPIO.Name {
			return nil, core.Invalid("device", device, "only exposes the gpio registers")
		}
		offset = 0
	} else {
		if base == 0 {
			base = PeripheralBase()
		}
		offset += base
	}

	file, err := os.OpenFile(device, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", device, err)
	}
	// FD can be closed after memory mapping
	defer file.Close()

	mem, err := unix.Mmap(int(file.Fd()), offset, BlockSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to map %s registers at 0x%08x: %w", bus.Name, offset, err)
	}

	core.Debugf("[REGMAP] mapped %s at 0x%08x", bus.Name, offset)
	words := unsafe.Slice((*uint32)(unsafe.Pointer(&mem[0])), BlockSize/4)
	return &Map{
		bus:   bus,
		words: words[:bus.Words],
		unmap: func() error { return unix.Munmap(mem) },
	}, nil
}
