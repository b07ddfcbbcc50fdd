package sqlite

import (
	"context"
	"sync"

	"github.com/cosmikwolf/sazid/internal/adapters/driven/vector/hnsw"
	"github.com/cosmikwolf/sazid/internal/logger"
)

type pendingVector struct {
	id  string
	vec []float32
}

// backgroundIndex owns an HNSW graph and the queue of vectors waiting to
// enter it. Writers stage ids inside their transaction, before commit, and
// drop them again if the commit fails; a single goroutine moves them into
// the graph. Queries combine a graph search with an exact scan of the
// still-pending vectors.
type backgroundIndex struct {
	name  string
	graph *hnsw.Index
	dist  hnsw.DistanceFunc

	// mu guards pending, queue and idle.
	mu         sync.Mutex
	pending    map[string][]float32
	queue      []string
	idle       chan struct{}
	idleClosed bool

	// graphMu orders graph writes against pending removal so that a vector
	// is in the graph before it leaves the pending set.
	graphMu sync.Mutex

	kick chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newBackgroundIndex(name string, cfg hnsw.Config) (*backgroundIndex, error) {
	graph, err := hnsw.New(cfg)
	if err != nil {
		return nil, err
	}
	dist, err := hnsw.Distance(graph.Metric())
	if err != nil {
		return nil, err
	}

	idle := make(chan struct{})
	close(idle)

	b := &backgroundIndex{
		name:       name,
		graph:      graph,
		dist:       dist,
		pending:    make(map[string][]float32),
		idle:       idle,
		idleClosed: true,
		kick:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go b.run()
	return b, nil
}

// enqueue schedules a vector for indexing.
func (b *backgroundIndex) enqueue(id string, vec []float32) {
	b.mu.Lock()
	if b.idleClosed {
		b.idle = make(chan struct{})
		b.idleClosed = false
	}
	if _, queued := b.pending[id]; !queued {
		b.queue = append(b.queue, id)
	}
	b.pending[id] = vec
	b.mu.Unlock()

	select {
	case b.kick <- struct{}{}:
	default:
	}
}

// stagedVectors tracks vectors enqueued for rows of an open transaction.
type stagedVectors struct {
	index *backgroundIndex
	ids   []string
}

// stage starts tracking vectors for one transaction. Callers defer discard
// and call keep once the commit succeeded.
func (b *backgroundIndex) stage() *stagedVectors {
	return &stagedVectors{index: b}
}

func (s *stagedVectors) add(id string, vec []float32) {
	s.index.enqueue(id, vec)
	s.ids = append(s.ids, id)
}

// keep marks the staged vectors as committed.
func (s *stagedVectors) keep() {
	s.ids = nil
}

// discard removes staged vectors that were never committed.
func (s *stagedVectors) discard() {
	if len(s.ids) == 0 {
		return
	}
	s.index.remove(s.ids)
	s.ids = nil
}

// remove drops ids from the pending set and the graph.
func (b *backgroundIndex) remove(ids []string) {
	b.graphMu.Lock()
	defer b.graphMu.Unlock()

	b.mu.Lock()
	for _, id := range ids {
		delete(b.pending, id)
	}
	b.signalIdleLocked()
	b.mu.Unlock()

	for _, id := range ids {
		_ = b.graph.Delete(id)
	}
}

func (b *backgroundIndex) run() {
	defer close(b.done)
	for {
		select {
		case <-b.stop:
			return
		case <-b.kick:
		}
		for b.step() {
			select {
			case <-b.stop:
				return
			default:
			}
		}
	}
}

// step moves one queued vector into the graph and reports whether the
// queue had work.
func (b *backgroundIndex) step() bool {
	b.graphMu.Lock()
	defer b.graphMu.Unlock()

	b.mu.Lock()
	if len(b.queue) == 0 {
		b.mu.Unlock()
		return false
	}
	id := b.queue[0]
	b.queue = b.queue[1:]
	vec, ok := b.pending[id]
	b.mu.Unlock()

	if !ok {
		// Deleted before it was indexed.
		return true
	}

	if err := b.graph.Add(id, vec); err != nil {
		logger.Warn("%s index: dropping %s: %v", b.name, id, err)
	}

	b.mu.Lock()
	if cur, ok := b.pending[id]; ok {
		if sameVector(cur, vec) {
			delete(b.pending, id)
		} else {
			// Replaced while indexing; index the newer vector too.
			b.queue = append(b.queue, id)
		}
	}
	b.signalIdleLocked()
	b.mu.Unlock()
	return true
}

func (b *backgroundIndex) signalIdleLocked() {
	if len(b.pending) == 0 && !b.idleClosed {
		close(b.idle)
		b.idleClosed = true
	}
}

func sameVector(a, b []float32) bool {
	return len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
}

// search returns candidate ids with their distances: the graph's k nearest
// plus every pending vector. The pending snapshot is taken before the graph
// search so a vector moving between them is seen at least once.
func (b *backgroundIndex) search(query []float32, k int) (map[string]float64, error) {
	b.mu.Lock()
	snapshot := make([]pendingVector, 0, len(b.pending))
	for id, vec := range b.pending {
		snapshot = append(snapshot, pendingVector{id: id, vec: vec})
	}
	b.mu.Unlock()

	hits, err := b.graph.Search(query, k)
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(hits)+len(snapshot))
	for _, h := range hits {
		out[h.ID] = h.Distance
	}
	for _, p := range snapshot {
		out[p.id] = b.dist(query, p.vec)
	}
	return out, nil
}

// pendingCount returns the number of vectors not yet in the graph.
func (b *backgroundIndex) pendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// wait blocks until the pending set is empty.
func (b *backgroundIndex) wait(ctx context.Context) error {
	b.mu.Lock()
	idle := b.idle
	b.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops the indexing goroutine.
func (b *backgroundIndex) close() {
	select {
	case <-b.stop:
	default:
		close(b.stop)
	}
	<-b.done
}
