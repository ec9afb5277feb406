package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/face-attendance/internal/embedding"
)

// GalleryIndexMetadata stores metadata for validating a persisted gallery index.
type GalleryIndexMetadata struct {
	IdentityCount int64     `json:"identity_count"`
	MaxIdentityID int64     `json:"max_identity_id"`
	Dim           int       `json:"dim"`
	BuildTime     time.Time `json:"build_time"`
	Version       int       `json:"version"`
}

const galleryIndexVersion = 1

// ErrIndexStale is returned by Load when the persisted graph does not match the gallery.
var ErrIndexStale = errors.New("gallery index is stale")

// GalleryIndex wraps an HNSW graph over identity reference embeddings.
// It only narrows the candidate set; callers re-rank candidates with the exact distance.
type GalleryIndex struct {
	graph      *hnsw.Graph[int64]
	identities map[int64]*Identity
	dim        int
	mu         sync.RWMutex
}

// NewGalleryIndex creates a new empty gallery index.
func NewGalleryIndex() *GalleryIndex {
	return &GalleryIndex{
		identities: make(map[int64]*Identity),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance
	return g
}

// Build replaces the index contents with the given identities.
func (g *GalleryIndex) Build(identities []Identity) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	graph := newGraph()
	byID := make(map[int64]*Identity, len(identities))
	dim := 0

	for i := range identities {
		id := &identities[i]
		if len(id.Embedding) == 0 {
			continue
		}
		if dim == 0 {
			dim = len(id.Embedding)
		} else if len(id.Embedding) != dim {
			return &embedding.DimensionMismatchError{Want: dim, Got: len(id.Embedding)}
		}
		graph.Add(hnsw.MakeNode(id.ID, []float32(id.Embedding)))
		byID[id.ID] = id
	}

	g.graph = graph
	g.identities = byID
	g.dim = dim
	return nil
}

// Add inserts a single identity into the index.
func (g *GalleryIndex) Add(identity Identity) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(identity.Embedding) == 0 {
		return nil
	}
	if g.dim != 0 && len(identity.Embedding) != g.dim {
		return &embedding.DimensionMismatchError{Want: g.dim, Got: len(identity.Embedding)}
	}
	if g.graph == nil {
		g.graph = newGraph()
	}

	g.graph.Add(hnsw.MakeNode(identity.ID, []float32(identity.Embedding)))
	g.identities[identity.ID] = &identity
	g.dim = len(identity.Embedding)
	return nil
}

// Candidates returns up to k identities near the query, in graph order.
func (g *GalleryIndex) Candidates(query embedding.Vector, k int) ([]Identity, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.graph == nil || g.graph.Len() == 0 {
		return nil, nil
	}
	if len(query) != g.dim {
		return nil, &embedding.DimensionMismatchError{Want: g.dim, Got: len(query)}
	}

	nodes := g.graph.Search([]float32(query), k)
	out := make([]Identity, 0, len(nodes))
	for _, n := range nodes {
		if id, ok := g.identities[n.Key]; ok {
			out = append(out, *id)
		}
	}
	return out, nil
}

// Contains reports whether the identity is in the index.
func (g *GalleryIndex) Contains(id int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.identities[id]
	return ok
}

// Count returns the number of indexed identities.
func (g *GalleryIndex) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.identities)
}

// Metadata describes the current index contents.
func (g *GalleryIndex) Metadata() GalleryIndexMetadata {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var maxID int64
	for id := range g.identities {
		maxID = max(maxID, id)
	}
	return GalleryIndexMetadata{
		IdentityCount: int64(len(g.identities)),
		MaxIdentityID: maxID,
		Dim:           g.dim,
		BuildTime:     time.Now().UTC(),
		Version:       galleryIndexVersion,
	}
}

// Save persists the graph to path and its metadata to path + ".meta".
func (g *GalleryIndex) Save(path string) error {
	meta := g.Metadata()

	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.graph == nil || g.graph.Len() == 0 {
		// Nothing to persist (best-effort cleanup of stale files).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create gallery index file: %w", err)
	}
	if err := g.graph.Export(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export gallery graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing gallery index file: %w", err)
	}

	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// LoadGalleryIndexMetadata loads metadata from a separate .meta file.
func LoadGalleryIndexMetadata(path string) (GalleryIndexMetadata, error) {
	var metadata GalleryIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// Load reads a persisted graph and attaches the given identities to it.
// Returns ErrIndexStale if the metadata does not describe the same gallery.
func (g *GalleryIndex) Load(path string, identities []Identity) error {
	meta, err := LoadGalleryIndexMetadata(path)
	if err != nil {
		return err
	}

	var maxID int64
	for i := range identities {
		maxID = max(maxID, identities[i].ID)
	}
	if meta.Version != galleryIndexVersion ||
		meta.IdentityCount != int64(len(identities)) ||
		meta.MaxIdentityID != maxID {
		return ErrIndexStale
	}

	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return fmt.Errorf("failed to load gallery index: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.graph = saved.Graph
	g.dim = meta.Dim
	g.identities = make(map[int64]*Identity, len(identities))
	for i := range identities {
		g.identities[identities[i].ID] = &identities[i]
	}
	return nil
}
