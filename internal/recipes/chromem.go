package recipes

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/philippgille/chromem-go"
)

const chromemCollection = "recipes"

var errNoEmbeddingFunc = errors.New("recipes: chromem index only accepts precomputed embeddings")

// ChromemIndex keeps the vectors in an in-memory chromem-go collection.
//
// chromem ranks by cosine similarity over normalized vectors. For
// unit-length inputs that order equals L2 order, and the reported distance
// sqrt(2 - 2cos) equals the L2 distance. Use it only with embedders that
// normalize their output.
type ChromemIndex struct {
	collection *chromem.Collection
	dim        int
	n          int
}

// NewChromemIndex returns an empty chromem-backed index.
func NewChromemIndex() *ChromemIndex {
	return &ChromemIndex{}
}

// Build loads vectors into a fresh in-memory collection. Document IDs are
// build positions.
func (c *ChromemIndex) Build(vectors [][]float32) error {
	dim, err := commonDimension(vectors)
	if err != nil {
		return err
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection(chromemCollection, nil, func(context.Context, string) ([]float32, error) {
		return nil, errNoEmbeddingFunc
	})
	if err != nil {
		return fmt.Errorf("creating chromem collection: %w", err)
	}

	docs := make([]chromem.Document, len(vectors))
	for i, v := range vectors {
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(i),
			Embedding: slices.Clone(v),
		}
	}
	// Concurrency of 1 since embeddings are precomputed.
	if err := collection.AddDocuments(context.Background(), docs, 1); err != nil {
		return fmt.Errorf("adding vectors to chromem: %w", err)
	}

	c.collection = collection
	c.dim = dim
	c.n = len(vectors)
	return nil
}

// Nearest queries the collection by embedding.
func (c *ChromemIndex) Nearest(query []float32, k int) ([]Match, error) {
	if c.collection == nil || c.n == 0 {
		return nil, ErrEmptyIndex
	}
	if len(query) != c.dim {
		return nil, fmt.Errorf("%w: query has %d dims, index has %d", ErrDimensionMismatch, len(query), c.dim)
	}
	if k <= 0 {
		return nil, nil
	}
	// chromem requires nResults <= document count.
	if k > c.n {
		k = c.n
	}

	results, err := c.collection.QueryEmbedding(context.Background(), slices.Clone(query), k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying chromem: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		pos, err := strconv.Atoi(r.ID)
		if err != nil {
			return nil, fmt.Errorf("unexpected chromem document id %q", r.ID)
		}
		matches = append(matches, Match{
			Position: pos,
			Distance: math.Sqrt(math.Max(0, 2-2*float64(r.Similarity))),
		})
	}
	slices.SortFunc(matches, func(a, b Match) int {
		if d := cmp.Compare(a.Distance, b.Distance); d != 0 {
			return d
		}
		return cmp.Compare(a.Position, b.Position)
	})
	return matches, nil
}

// Len returns the number of indexed vectors.
func (c *ChromemIndex) Len() int {
	return c.n
}
