package regmap

import (
	"encoding/binary"
	"os"
)

// Peripheral base addresses per board generation
const (
	Pi1Base int64 = 0x20000000
	Pi2Base int64 = 0x3F000000
	Pi4Base int64 = 0xFE000000
)

// RangesPath is the device tree node describing the SoC bus ranges
var RangesPath = "/proc/device-tree/soc/ranges"

// PeripheralBase reads the peripheral base address from the device tree.
// It falls back to the first-generation Pi base when the node is missing.
func PeripheralBase() int64 {
	f, err := os.Open(RangesPath)
	if err != nil {
		return Pi1Base
	}
	defer f.Close()

	b := make([]byte, 8)
	n, _ := f.ReadAt(b, 4)
	if n < 4 {
		return Pi1Base
	}
	base := binary.BigEndian.Uint32(b[:4])
	if base == 0 && n == 8 {
		// 64-bit parent address on BCM2711
		base = binary.BigEndian.Uint32(b[4:])
	}
	if base == 0 {
		return Pi1Base
	}
	return int64(base)
}
