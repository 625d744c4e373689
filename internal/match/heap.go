package match

// scored is a candidate position with its similarity.
type scored struct {
	Index int
	Score float64
}

// better orders by score descending, then by input position ascending.
func better(a, b scored) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Index < b.Index
}

// minHeap keeps the worst retained entry at the root so it can be evicted
// when a better one arrives.
type minHeap []scored

func (h *minHeap) Len() int { return len(*h) }

func (h *minHeap) Push(m scored) {
	*h = append(*h, m)
	h.up(len(*h) - 1)
}

func (h *minHeap) Replace(m scored) {
	(*h)[0] = m
	h.down(0, len(*h))
}

func (h *minHeap) up(j int) {
	for j > 0 {
		i := (j - 1) / 2
		if !better((*h)[i], (*h)[j]) {
			break
		}
		(*h)[i], (*h)[j] = (*h)[j], (*h)[i]
		j = i
	}
}

func (h *minHeap) down(i0, n int) {
	i := i0
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 {
			break
		}
		j := j1
		if j2 := j1 + 1; j2 < n && better((*h)[j1], (*h)[j2]) {
			j = j2
		}
		if !better((*h)[i], (*h)[j]) {
			break
		}
		(*h)[i], (*h)[j] = (*h)[j], (*h)[i]
		i = j
	}
}
