package wire

// Vector2 is a pair of single precision floats, X first.
type Vector2 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Color is an opaque RGB triple.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// BitsByte is a single flag byte; bit 0 is the least significant bit.
type BitsByte uint8

// Get reports whether bit i is set.
func (b BitsByte) Get(i int) bool {
	return b&(1<<uint(i)) != 0
}

// Set sets or clears bit i.
func (b *BitsByte) Set(i int, v bool) {
	if v {
		*b |= 1 << uint(i)
	} else {
		*b &^= 1 << uint(i)
	}
}

// FlagBytes returns the number of flag bytes needed to gate n slots.
func FlagBytes(n int) int {
	return (n + 7) / 8
}
