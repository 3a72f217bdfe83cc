package sliceutil

import "kestrel/internal/venue"

// Positions copies a slice of venue.Position.
// Defined in a separate file to avoid import cycle.
func Positions(src []venue.Position) []venue.Position {
	if len(src) == 0 {
		return nil
	}
	dst := make([]venue.Position, len(src))
	copy(dst, src)
	return dst
}
