package hnsw

type candidate struct {
	node int
	dist float64
}

// minQueue pops the closest candidate first.
type minQueue []candidate

func (q minQueue) Len() int           { return len(q) }
func (q minQueue) Less(i, j int) bool { return q[i].dist < q[j].dist }
func (q minQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *minQueue) Push(x any)        { *q = append(*q, x.(candidate)) }
func (q *minQueue) Pop() any {
	old := *q
	n := len(old)
	c := old[n-1]
	*q = old[:n-1]
	return c
}

// maxQueue pops the farthest candidate first.
type maxQueue []candidate

func (q maxQueue) Len() int           { return len(q) }
func (q maxQueue) Less(i, j int) bool { return q[i].dist > q[j].dist }
func (q maxQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *maxQueue) Push(x any)        { *q = append(*q, x.(candidate)) }
func (q *maxQueue) Pop() any {
	old := *q
	n := len(old)
	c := old[n-1]
	*q = old[:n-1]
	return c
}
