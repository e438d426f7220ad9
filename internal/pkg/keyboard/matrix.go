package keyboard

import (
	"github.com/holoplot/go-evdev"
)

// Default emulated matrix geometry, roughly a full-size board.
const (
	defaultRows = 6
	defaultCols = 22
)

type pair [2]evdev.EvCode

func orderedPair(a, b evdev.EvCode) pair {
	if a > b {
		a, b = b, a
	}
	return pair{a, b}
}

// ConflictMatrix describes which simultaneous key combinations the emulated
// hardware cannot disambiguate. Ambiguity is pairwise: a combination is
// ambiguous when any two of its keys form an ambiguous pair.
//
// Pairs are derived from matrix geometry (keys wired to the same row or
// column line) and can be extended with explicit pairs for boards with known
// quirks.
type ConflictMatrix struct {
	rows, cols int
	extra      map[pair]struct{}
}

func NewConflictMatrix(rows, cols int) *ConflictMatrix {
	if rows < 1 {
		rows = defaultRows
	}
	if cols < 1 {
		cols = defaultCols
	}
	return &ConflictMatrix{
		rows:  rows,
		cols:  cols,
		extra: make(map[pair]struct{}),
	}
}

func (m *ConflictMatrix) position(code evdev.EvCode) (int, int) {
	return int(code) / m.cols % m.rows, int(code) % m.cols
}

// AddPair marks two keys as ambiguous regardless of their matrix positions.
func (m *ConflictMatrix) AddPair(a, b evdev.EvCode) {
	m.extra[orderedPair(a, b)] = struct{}{}
}

func (m *ConflictMatrix) Ambiguous(a, b evdev.EvCode) bool {
	if a == b {
		return false
	}
	if _, ok := m.extra[orderedPair(a, b)]; ok {
		return true
	}
	rowA, colA := m.position(a)
	rowB, colB := m.position(b)
	return rowA == rowB || colA == colB
}

// ConflictsWithAny reports whether code forms an ambiguous pair with any of
// the given keys.
func (m *ConflictMatrix) ConflictsWithAny(code evdev.EvCode, active []evdev.EvCode) bool {
	for _, other := range active {
		if m.Ambiguous(code, other) {
			return true
		}
	}
	return false
}
