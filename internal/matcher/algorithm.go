package matcher

import (
	"fmt"
	"math"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedding"
)

// Algorithm names a versioned matching algorithm. Changing how candidates are
// found changes acceptance semantics, so every variant carries its own version.
type Algorithm string

const (
	// AlgorithmExact is the exhaustive Euclidean scan.
	AlgorithmExact Algorithm = "exact-v1"
	// AlgorithmHNSW narrows candidates with an HNSW graph, then re-ranks exactly.
	// It may miss the true nearest neighbour on large galleries.
	AlgorithmHNSW Algorithm = "hnsw-v1"
)

// ParseAlgorithm converts a config value to an Algorithm. Empty means exact.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case "", AlgorithmExact:
		return AlgorithmExact, nil
	case AlgorithmHNSW:
		return AlgorithmHNSW, nil
	default:
		return "", fmt.Errorf("unknown match algorithm %q (want %s or %s)", s, AlgorithmExact, AlgorithmHNSW)
	}
}

// Strategy matches a query against a gallery snapshot.
type Strategy interface {
	Algorithm() Algorithm
	Match(query embedding.Vector, gallery []database.Identity, threshold float64) (Result, error)
}

// Exact is the default Strategy; it delegates to Match.
type Exact struct{}

// Algorithm returns AlgorithmExact.
func (Exact) Algorithm() Algorithm { return AlgorithmExact }

// Match runs the exhaustive scan.
func (Exact) Match(query embedding.Vector, gallery []database.Identity, threshold float64) (Result, error) {
	return Match(query, gallery, threshold)
}

// Indexed is the hnsw-v1 Strategy. Candidates come from the gallery index;
// gallery entries the index does not know yet are always compared as well.
type Indexed struct {
	Index *database.GalleryIndex
	K     int // candidates requested from the graph; defaults from database constants
}

// Algorithm returns AlgorithmHNSW.
func (s *Indexed) Algorithm() Algorithm { return AlgorithmHNSW }

// Match narrows the gallery through the index and applies the exact decision rule to the candidates.
func (s *Indexed) Match(query embedding.Vector, gallery []database.Identity, threshold float64) (Result, error) {
	if len(gallery) == 0 {
		res := Unknown()
		res.Algorithm = AlgorithmHNSW
		return res, nil
	}
	if err := checkQuery(query); err != nil {
		return Result{}, err
	}
	for i := range gallery {
		if len(gallery[i].Embedding) != len(query) {
			return Result{}, &embedding.DimensionMismatchError{Want: len(gallery[i].Embedding), Got: len(query)}
		}
	}

	k := s.K
	if k <= 0 {
		k = database.HNSWSearchMultiplier * database.HNSWMinCandidates
	}

	candidates, err := s.Index.Candidates(query, k)
	if err != nil {
		return Result{}, fmt.Errorf("gallery index search: %w", err)
	}

	// Map back to gallery positions so ties still resolve by gallery order.
	consider := make(map[int64]bool, len(candidates))
	for _, c := range candidates {
		consider[c.ID] = true
	}

	best := -1
	bestDist := math.Inf(1)
	for i := range gallery {
		id := gallery[i].ID
		if !consider[id] && s.Index.Contains(id) {
			continue
		}
		d, err := embedding.EuclideanDistance(query, gallery[i].Embedding)
		if err != nil {
			return Result{}, err
		}
		if best < 0 || d < bestDist {
			best = i
			bestDist = d
		}
	}

	if best < 0 {
		res := Unknown()
		res.Algorithm = AlgorithmHNSW
		return res, nil
	}
	return decide(gallery, best, bestDist, threshold, AlgorithmHNSW), nil
}
