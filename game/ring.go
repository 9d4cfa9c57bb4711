package game

// ring is a fixed capacity FIFO of archer ids. A game never holds more
// archers than it started with, so Push never needs to grow the buffer.
type ring struct {
	buf  []int
	head int
	size int
}

func newRing(ids []int) *ring {
	buf := make([]int, len(ids))
	copy(buf, ids)
	return &ring{buf: buf, size: len(ids)}
}

func (r *ring) Len() int {
	return r.size
}

// Pop removes and returns the front id. Callers check Len first.
func (r *ring) Pop() int {
	id := r.buf[r.head]
	r.head = (r.head + 1) % len(r.buf)
	r.size--
	return id
}

// Push appends id at the back
func (r *ring) Push(id int) {
	r.buf[(r.head+r.size)%len(r.buf)] = id
	r.size++
}
