package gpio

import (
	"sort"

	"periph.io/x/periph/conn/pin"

	"bcmio/core"
)

// P1 maps the GPIO positions of the 26-pin revision 1 header to BCM pins
var P1 = map[int]int{
	3:  0,
	5:  1,
	7:  4,
	8:  14,
	10: 15,
	11: 17,
	12: 18,
	13: 21,
	15: 22,
	16: 23,
	18: 24,
	19: 10,
	21: 9,
	22: 25,
	23: 11,
	24: 8,
	26: 7,
}

// Power and ground positions of the P1 header
var p1Power = map[int]pin.Pin{
	1:  pin.V3_3,
	2:  pin.V5,
	4:  pin.V5,
	6:  pin.GROUND,
	9:  pin.GROUND,
	14: pin.GROUND,
	17: pin.V3_3,
	20: pin.GROUND,
	25: pin.GROUND,
}

// HeaderPin returns the BCM pin wired to P1 header position n
func HeaderPin(n int) (int, error) {
	p, ok := P1[n]
	if !ok {
		return 0, core.Invalid("header position", n, "not a GPIO on P1")
	}
	return p, nil
}

// HeaderPositions returns the GPIO capable P1 positions in ascending order
func HeaderPositions() []int {
	out := make([]int, 0, len(P1))
	for n := range P1 {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Header returns the P1 layout as two rows of 13 pins, odd positions first
func (c *Controller) Header() [][]pin.Pin {
	rows := [][]pin.Pin{make([]pin.Pin, 13), make([]pin.Pin, 13)}
	for n := 1; n <= 26; n++ {
		var p pin.Pin = pin.INVALID
		if bcm, ok := P1[n]; ok {
			l, _ := c.Line(bcm)
			p = l
		} else if pw, ok := p1Power[n]; ok {
			p = pw
		}
		rows[(n-1)%2][(n-1)/2] = p
	}
	return rows
}
