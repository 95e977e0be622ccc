//go:build !linux

package regmap

import "errors"

// BlockSize is the length of each mapped register window
const BlockSize = 4 * 1024

// Open is only supported on Linux
func Open(bus Bus, device string, base int64) (*Map, error) {
	return nil, errors.New("register mapping requires linux")
}
