package models

// Side is one of the two competing positions in a room.
type Side string

const (
	SideNone Side = ""
	SideA    Side = "A"
	SideB    Side = "B"
)

// Opponent returns the other side. SideNone has no opponent.
func (s Side) Opponent() Side {
	switch s {
	case SideA:
		return SideB
	case SideB:
		return SideA
	}
	return SideNone
}

// Valid reports whether s is SideA or SideB.
func (s Side) Valid() bool {
	return s == SideA || s == SideB
}

// Index maps SideA to 0 and SideB to 1, for per-side arrays.
func (s Side) Index() int {
	if s == SideB {
		return 1
	}
	return 0
}

// SideAt is the inverse of Index.
func SideAt(i int) Side {
	if i == 1 {
		return SideB
	}
	return SideA
}
