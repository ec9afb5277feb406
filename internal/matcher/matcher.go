// Package matcher decides whether a query embedding belongs to an enrolled identity.
//
// Match is a pure function over a gallery snapshot: it performs an exact
// nearest-neighbour scan using Euclidean distance and accepts the nearest
// identity only if its distance is strictly below the caller's threshold.
package matcher

import (
	"math"
	"sort"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedding"
)

// Result is the outcome of matching one query embedding.
type Result struct {
	Matched   bool
	Identity  *database.Identity // nil unless Matched
	Distance  float64            // nearest distance observed, +Inf if nothing was compared
	Index     int                // gallery index of the nearest entry, -1 if nothing was compared
	Algorithm Algorithm
}

// Unknown returns a result for a query that matched nobody and was compared against nothing.
func Unknown() Result {
	return Result{Distance: math.Inf(1), Index: -1, Algorithm: AlgorithmExact}
}

// Compared reports whether at least one gallery entry was compared.
func (r Result) Compared() bool {
	return r.Index >= 0
}

// Match compares query against every gallery entry and returns the nearest one
// if its distance is strictly less than threshold.
//
// Ties on the minimum distance go to the lowest gallery index.
// An empty gallery yields Unknown without any comparison.
func Match(query embedding.Vector, gallery []database.Identity, threshold float64) (Result, error) {
	if len(gallery) == 0 {
		return Unknown(), nil
	}
	if err := checkQuery(query); err != nil {
		return Result{}, err
	}

	best := -1
	bestDist := math.Inf(1)
	for i := range gallery {
		d, err := embedding.EuclideanDistance(query, gallery[i].Embedding)
		if err != nil {
			return Result{}, err
		}
		// Strict less-than keeps the first index on ties.
		if best < 0 || d < bestDist {
			best = i
			bestDist = d
		}
	}

	return decide(gallery, best, bestDist, threshold, AlgorithmExact), nil
}

// checkQuery rejects non-finite queries. An empty query is left to the
// per-entry dimension check so it surfaces as a DimensionMismatchError.
func checkQuery(query embedding.Vector) error {
	if len(query) == 0 {
		return nil
	}
	return embedding.Validate(query)
}

func decide(gallery []database.Identity, best int, dist, threshold float64, alg Algorithm) Result {
	res := Result{Distance: dist, Index: best, Algorithm: alg}
	if dist < threshold {
		identity := gallery[best]
		res.Matched = true
		res.Identity = &identity
	}
	return res
}

// Candidate is one ranked gallery entry.
type Candidate struct {
	Identity database.Identity
	Distance float64
	Index    int
}

// Rank returns the k nearest gallery entries in ascending distance order,
// ties ordered by gallery index. k <= 0 returns all entries.
func Rank(query embedding.Vector, gallery []database.Identity, k int) ([]Candidate, error) {
	if len(gallery) == 0 {
		return nil, nil
	}
	if err := checkQuery(query); err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(gallery))
	for i := range gallery {
		d, err := embedding.EuclideanDistance(query, gallery[i].Embedding)
		if err != nil {
			return nil, err
		}
		out = append(out, Candidate{Identity: gallery[i], Distance: d, Index: i})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Distance < out[j].Distance
	})
	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out, nil
}
