package model

// Direction declares which side is the source of truth for the current
// sync configuration. Left is the locally-owned calendar, Right the
// remote one.
type Direction string

const (
	DirectionRightToLeft   Direction = "right-to-left"
	DirectionLeftToRight   Direction = "left-to-right"
	DirectionBidirectional Direction = "bidirectional"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	switch d {
	case DirectionRightToLeft, DirectionLeftToRight, DirectionBidirectional:
		return true
	}
	return false
}
