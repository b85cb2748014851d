package media

import "sync"

// chunkBuffer accumulates binary chunks in arrival order. It implements
// io.Writer so pion's container writers can emit straight into it.
type chunkBuffer struct {
	mu     sync.Mutex
	chunks [][]byte
	size   int
}

func newChunkBuffer() *chunkBuffer {
	return &chunkBuffer{}
}

func (b *chunkBuffer) Write(p []byte) (int, error) {
	c := make([]byte, len(p))
	copy(c, p)
	b.Append(c)
	return len(p), nil
}

// Append takes ownership of c.
func (b *chunkBuffer) Append(c []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = append(b.chunks, c)
	b.size += len(c)
}

// Assemble concatenates all chunks into one artifact body.
func (b *chunkBuffer) Assemble() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, 0, b.size)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	return out
}

func (b *chunkBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}
