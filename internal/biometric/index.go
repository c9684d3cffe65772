package biometric

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	dErrors "rollcall/pkg/domain-errors"
)

// Entry is one enrolled identity in the index.
type Entry struct {
	Slot       int
	IdentityID string
	Name       string
	Vector     []float64
}

// SearchResult is one ranked hit.
type SearchResult struct {
	IdentityID string  `json:"identity_id"`
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity"`
}

// Stats describes the index for diagnostics.
type Stats struct {
	Entries   int    `json:"entries"`
	Dimension int    `json:"dimension"`
	IndexType string `json:"index_type"`
}

// Index is the vector store used for enrollment and identification. Removal
// may be O(n); implementations must keep searches safe against concurrent
// mutation.
type Index interface {
	Add(identityID, name string, vector []float64) (int, error)
	Search(query []float64, k int) ([]SearchResult, error)
	FindBestMatch(query []float64, threshold float64) (*SearchResult, error)
	CheckDuplicate(vector []float64, threshold float64) (*SearchResult, error)
	Get(identityID string) (Entry, bool)
	Remove(identityID string) bool
	Rebuild(entries []Entry) error
	Len() int
	Stats() Stats
}

type snapshot struct {
	entries  []Entry
	byID     map[string]int
	nextSlot int
}

// FlatIndex is an exhaustive cosine index. Readers load an immutable snapshot
// without locking; writers serialize on mu, copy the snapshot, modify the copy
// and publish it.
type FlatIndex struct {
	dim  int
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

var _ Index = (*FlatIndex)(nil)

func NewFlatIndex(dimension int) *FlatIndex {
	idx := &FlatIndex{dim: dimension}
	idx.snap.Store(&snapshot{byID: map[string]int{}})
	return idx
}

func (f *FlatIndex) prepare(v []float64) ([]float64, error) {
	if len(v) != f.dim {
		return nil, dErrors.New(dErrors.CodeInvalidInput,
			fmt.Sprintf("embedding dimension %d does not match index dimension %d", len(v), f.dim))
	}
	return Normalize(v)
}

// Add normalizes vector and appends it under a new slot. An identity can hold
// only one entry.
func (f *FlatIndex) Add(identityID, name string, vector []float64) (int, error) {
	if identityID == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "identity id is required")
	}
	n, err := f.prepare(vector)
	if err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	cur := f.snap.Load()
	if _, exists := cur.byID[identityID]; exists {
		return 0, dErrors.New(dErrors.CodeConflict, "identity is already indexed")
	}
	next := &snapshot{
		entries:  make([]Entry, len(cur.entries), len(cur.entries)+1),
		byID:     make(map[string]int, len(cur.byID)+1),
		nextSlot: cur.nextSlot + 1,
	}
	copy(next.entries, cur.entries)
	for k, v := range cur.byID {
		next.byID[k] = v
	}
	slot := cur.nextSlot
	next.entries = append(next.entries, Entry{Slot: slot, IdentityID: identityID, Name: name, Vector: n})
	next.byID[identityID] = len(next.entries) - 1
	f.snap.Store(next)
	return slot, nil
}

// Search returns the top k entries by cosine similarity, descending. Equal
// similarities keep insertion order.
func (f *FlatIndex) Search(query []float64, k int) ([]SearchResult, error) {
	q, err := f.prepare(query)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	snap := f.snap.Load()
	results := make([]SearchResult, len(snap.entries))
	for i, e := range snap.entries {
		results[i] = SearchResult{IdentityID: e.IdentityID, Name: e.Name, Similarity: dot(q, e.Vector)}
	}
	slices.SortStableFunc(results, func(a, b SearchResult) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// FindBestMatch returns the top hit when it reaches threshold, otherwise nil.
func (f *FlatIndex) FindBestMatch(query []float64, threshold float64) (*SearchResult, error) {
	hits, err := f.Search(query, 1)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 || hits[0].Similarity < threshold {
		return nil, nil
	}
	return &hits[0], nil
}

// CheckDuplicate reports an existing enrollment at or above threshold.
func (f *FlatIndex) CheckDuplicate(vector []float64, threshold float64) (*SearchResult, error) {
	return f.FindBestMatch(vector, threshold)
}

func (f *FlatIndex) Get(identityID string) (Entry, bool) {
	snap := f.snap.Load()
	i, ok := snap.byID[identityID]
	if !ok {
		return Entry{}, false
	}
	return snap.entries[i], true
}

// Remove rebuilds the index without identityID. Reports whether it was present.
func (f *FlatIndex) Remove(identityID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur := f.snap.Load()
	if _, ok := cur.byID[identityID]; !ok {
		return false
	}
	next := &snapshot{
		entries:  make([]Entry, 0, len(cur.entries)-1),
		byID:     make(map[string]int, len(cur.byID)-1),
		nextSlot: cur.nextSlot,
	}
	for _, e := range cur.entries {
		if e.IdentityID == identityID {
			continue
		}
		next.byID[e.IdentityID] = len(next.entries)
		next.entries = append(next.entries, e)
	}
	f.snap.Store(next)
	return true
}

// Rebuild replaces the contents with entries, renumbering slots from zero. The
// previous contents stay visible to readers until the new snapshot is ready.
func (f *FlatIndex) Rebuild(entries []Entry) error {
	next := &snapshot{
		entries: make([]Entry, 0, len(entries)),
		byID:    make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		n, err := f.prepare(e.Vector)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid embedding for "+e.IdentityID)
		}
		if _, dup := next.byID[e.IdentityID]; dup {
			return dErrors.New(dErrors.CodeConflict, "duplicate identity in rebuild: "+e.IdentityID)
		}
		next.byID[e.IdentityID] = len(next.entries)
		next.entries = append(next.entries, Entry{
			Slot:       next.nextSlot,
			IdentityID: e.IdentityID,
			Name:       e.Name,
			Vector:     n,
		})
		next.nextSlot++
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.Store(next)
	return nil
}

func (f *FlatIndex) Len() int {
	return len(f.snap.Load().entries)
}

func (f *FlatIndex) Stats() Stats {
	return Stats{Entries: f.Len(), Dimension: f.dim, IndexType: "flat"}
}
