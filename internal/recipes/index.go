package recipes

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	// ErrDimensionMismatch is returned when vectors disagree on length.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrEmptyIndex is returned by Nearest before Build or after building
	// from nothing.
	ErrEmptyIndex = errors.New("index is empty")
)

// Match is one search hit.
type Match struct {
	// Position is the index of the matched vector in build order.
	Position int
	// Distance is the Euclidean distance to the query.
	Distance float64
}

// Index is a nearest-neighbour index over a fixed set of vectors.
// Build is called once; Nearest is safe for concurrent use afterwards.
type Index interface {
	Build(vectors [][]float32) error
	// Nearest returns up to k matches in ascending distance.
	Nearest(query []float32, k int) ([]Match, error)
	Len() int
}

// NewIndex returns the index backend named kind ("flat" or "chromem").
func NewIndex(kind string) (Index, error) {
	switch kind {
	case "flat", "":
		return NewFlatIndex(), nil
	case "chromem":
		return NewChromemIndex(), nil
	default:
		return nil, fmt.Errorf("unknown index kind %q", kind)
	}
}

// FlatIndex is an exact brute-force L2 index.
type FlatIndex struct {
	vectors [][]float32
	dim     int
}

// NewFlatIndex returns an empty flat index.
func NewFlatIndex() *FlatIndex {
	return &FlatIndex{}
}

// Build stores vectors. All vectors must share one non-zero dimension.
func (f *FlatIndex) Build(vectors [][]float32) error {
	dim, err := commonDimension(vectors)
	if err != nil {
		return err
	}
	f.vectors = vectors
	f.dim = dim
	return nil
}

// Nearest scans every vector. Equal distances keep build order, so the
// lowest position wins a tie.
func (f *FlatIndex) Nearest(query []float32, k int) ([]Match, error) {
	if len(f.vectors) == 0 {
		return nil, ErrEmptyIndex
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d dims, index has %d", ErrDimensionMismatch, len(query), f.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	matches := make([]Match, len(f.vectors))
	for i, v := range f.vectors {
		matches[i] = Match{Position: i, Distance: l2Distance(query, v)}
	}
	slices.SortStableFunc(matches, func(a, b Match) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})

	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// Len returns the number of indexed vectors.
func (f *FlatIndex) Len() int {
	return len(f.vectors)
}

// l2Distance accumulates in float64 to keep near-ties stable.
func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func commonDimension(vectors [][]float32) (int, error) {
	if len(vectors) == 0 {
		return 0, ErrEmptyIndex
	}
	dim := len(vectors[0])
	if dim == 0 {
		return 0, fmt.Errorf("%w: zero-length vector at position 0", ErrDimensionMismatch)
	}
	for i, v := range vectors[1:] {
		if len(v) != dim {
			return 0, fmt.Errorf("%w: vector %d has %d dims, expected %d", ErrDimensionMismatch, i+1, len(v), dim)
		}
	}
	return dim, nil
}
