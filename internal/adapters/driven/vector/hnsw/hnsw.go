package hnsw

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Default configuration values.
const (
	DefaultM              = 16
	DefaultEfConstruction = 200
	DefaultEfSearch       = 64
)

// compactMinNodes is the graph size below which tombstones are left in
// place; small graphs are cheap to search regardless.
const compactMinNodes = 64

// Config holds index parameters.
type Config struct {
	// Dimension is the vector size (required).
	Dimension int

	// Metric is fixed for the index lifetime (default: cosine).
	Metric domain.DistanceMetric

	// M is the neighbour count per node on upper layers; layer 0 keeps 2*M.
	M int

	// EfConstruction is the candidate list size while inserting.
	EfConstruction int

	// EfSearch is the minimum candidate list size while searching.
	EfSearch int

	// Seed makes level assignment deterministic when non-zero.
	Seed uint64
}

type node struct {
	id      string
	vec     []float32
	friends [][]int
	deleted bool
}

// Index is a concurrency-safe HNSW graph.
type Index struct {
	mu       sync.RWMutex
	cfg      Config
	dist     DistanceFunc
	nodes    []*node
	ids      map[string]int
	entry    int
	maxLevel int
	deleted  int
	levelMul float64
	rng      *rand.Rand
}

// New creates an empty index.
func New(cfg Config) (*Index, error) {
	if cfg.Dimension <= 0 {
		return nil, errors.New("hnsw: dimension must be positive")
	}
	if cfg.Metric == "" {
		cfg.Metric = domain.DistanceCosine
	}
	dist, err := Distance(cfg.Metric)
	if err != nil {
		return nil, err
	}
	if cfg.M <= 1 {
		cfg.M = DefaultM
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = DefaultEfConstruction
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = DefaultEfSearch
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	return &Index{
		cfg:      cfg,
		dist:     dist,
		ids:      make(map[string]int),
		entry:    -1,
		levelMul: 1 / math.Log(float64(cfg.M)),
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Metric returns the index distance metric.
func (idx *Index) Metric() domain.DistanceMetric {
	return idx.cfg.Metric
}

// Len returns the number of live vectors.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.ids)
}

// Contains reports whether id is indexed.
func (idx *Index) Contains(id string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.ids[id]
	return ok
}

// Add inserts a vector. Adding an existing id replaces its vector.
func (idx *Index) Add(id string, embedding []float32) error {
	if len(embedding) != idx.cfg.Dimension {
		return fmt.Errorf("hnsw: embedding dimension %d, want %d", len(embedding), idx.cfg.Dimension)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if old, ok := idx.ids[id]; ok {
		idx.tombstone(old)
	}
	idx.insert(id, append([]float32(nil), embedding...))
	idx.maybeCompact()
	return nil
}

// insert links a new node into the graph. The caller holds mu.
func (idx *Index) insert(id string, embedding []float32) {
	level := int(math.Floor(-math.Log(1-idx.rng.Float64()) * idx.levelMul))
	n := &node{
		id:      id,
		vec:     embedding,
		friends: make([][]int, level+1),
	}
	cur := len(idx.nodes)
	idx.nodes = append(idx.nodes, n)
	idx.ids[id] = cur

	if idx.entry < 0 {
		idx.entry = cur
		idx.maxLevel = level
		return
	}

	ep := []candidate{{node: idx.entry, dist: idx.dist(embedding, idx.nodes[idx.entry].vec)}}
	for l := idx.maxLevel; l > level; l-- {
		ep = idx.searchLayer(embedding, ep, 1, l)
	}

	for l := min(level, idx.maxLevel); l >= 0; l-- {
		found := idx.searchLayer(embedding, ep, idx.cfg.EfConstruction, l)
		neighbours := closest(found, idx.cfg.M)
		for _, nb := range neighbours {
			n.friends[l] = append(n.friends[l], nb.node)
			idx.link(nb.node, cur, l)
		}
		ep = found
	}

	if level > idx.maxLevel {
		idx.maxLevel = level
		idx.entry = cur
	}
}

// link adds to as a neighbour of from on layer l, pruning to the layer limit.
func (idx *Index) link(from, to, l int) {
	f := idx.nodes[from]
	f.friends[l] = append(f.friends[l], to)

	limit := idx.cfg.M
	if l == 0 {
		limit = 2 * idx.cfg.M
	}
	if len(f.friends[l]) <= limit {
		return
	}

	scored := make([]candidate, len(f.friends[l]))
	for i, nb := range f.friends[l] {
		scored[i] = candidate{node: nb, dist: idx.dist(f.vec, idx.nodes[nb].vec)}
	}
	kept := closest(scored, limit)
	f.friends[l] = f.friends[l][:0]
	for _, c := range kept {
		f.friends[l] = append(f.friends[l], c.node)
	}
}

// Delete tombstones a vector. Unknown ids are ignored.
func (idx *Index) Delete(id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if i, ok := idx.ids[id]; ok {
		idx.tombstone(i)
		idx.maybeCompact()
	}
	return nil
}

func (idx *Index) tombstone(i int) {
	n := idx.nodes[i]
	if n.deleted {
		return
	}
	n.deleted = true
	delete(idx.ids, n.id)
	idx.deleted++
}

// maybeCompact rebuilds the graph from its live nodes once tombstones
// outnumber them. An index whose every node is deleted is simply reset.
// The caller holds mu.
func (idx *Index) maybeCompact() {
	if idx.deleted == 0 {
		return
	}
	if len(idx.ids) > 0 && (len(idx.nodes) < compactMinNodes || 2*idx.deleted <= len(idx.nodes)) {
		return
	}

	live := make([]*node, 0, len(idx.ids))
	for _, n := range idx.nodes {
		if !n.deleted {
			live = append(live, n)
		}
	}
	idx.nodes = make([]*node, 0, len(live))
	idx.ids = make(map[string]int, len(live))
	idx.entry = -1
	idx.maxLevel = 0
	idx.deleted = 0
	for _, n := range live {
		idx.insert(n.id, n.vec)
	}
}

// Tombstones returns the number of deleted nodes still held by the graph.
func (idx *Index) Tombstones() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.deleted
}

// Search finds the k nearest live vectors, closest first.
func (idx *Index) Search(query []float32, k int) ([]driven.VectorHit, error) {
	if len(query) != idx.cfg.Dimension {
		return nil, fmt.Errorf("hnsw: query dimension %d, want %d", len(query), idx.cfg.Dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.entry < 0 || len(idx.ids) == 0 {
		return nil, nil
	}

	ep := []candidate{{node: idx.entry, dist: idx.dist(query, idx.nodes[idx.entry].vec)}}
	for l := idx.maxLevel; l > 0; l-- {
		ep = idx.searchLayer(query, ep, 1, l)
	}

	ef := max(idx.cfg.EfSearch, k) + idx.deleted
	found := idx.searchLayer(query, ep, ef, 0)
	sortCandidates(found)

	hits := make([]driven.VectorHit, 0, k)
	for _, c := range found {
		n := idx.nodes[c.node]
		if n.deleted {
			continue
		}
		hits = append(hits, driven.VectorHit{ID: n.id, Distance: c.dist})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// searchLayer is the greedy beam search of the HNSW paper (Algorithm 2).
func (idx *Index) searchLayer(q []float32, entry []candidate, ef, level int) []candidate {
	visited := make(map[int]struct{}, ef*4)
	candidates := &minQueue{}
	results := &maxQueue{}

	for _, e := range entry {
		visited[e.node] = struct{}{}
		heap.Push(candidates, e)
		heap.Push(results, e)
		if results.Len() > ef {
			heap.Pop(results)
		}
	}

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(candidate)
		if results.Len() >= ef && c.dist > (*results)[0].dist {
			break
		}

		n := idx.nodes[c.node]
		if level >= len(n.friends) {
			continue
		}
		for _, nb := range n.friends[level] {
			if _, seen := visited[nb]; seen {
				continue
			}
			visited[nb] = struct{}{}

			d := idx.dist(q, idx.nodes[nb].vec)
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(candidates, candidate{node: nb, dist: d})
				heap.Push(results, candidate{node: nb, dist: d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	return []candidate(*results)
}

func closest(cs []candidate, n int) []candidate {
	out := append([]candidate(nil), cs...)
	sortCandidates(out)
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func sortCandidates(cs []candidate) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].dist < cs[j].dist })
}
