package audio

import (
	"bytes"
	"sync"
)

// FragmentBuffer accumulates encoded audio fragments for one recording.
// It is safe for one writer and one reader to use concurrently.
type FragmentBuffer struct {
	mu        sync.Mutex
	fragments [][]byte
	size      int
	drained   bool
}

// NewFragmentBuffer creates an empty buffer
func NewFragmentBuffer() *FragmentBuffer {
	return &FragmentBuffer{}
}

// Append stores a copy of fragment. Appends after Drain are ignored.
func (b *FragmentBuffer) Append(fragment []byte) {
	if len(fragment) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.drained {
		return
	}
	frag := make([]byte, len(fragment))
	copy(frag, fragment)
	b.fragments = append(b.fragments, frag)
	b.size += len(frag)
}

// Drain concatenates every fragment in arrival order and empties the buffer.
// Only the first Drain after a Reset returns data.
func (b *FragmentBuffer) Drain() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.drained {
		return nil
	}
	b.drained = true

	var payload bytes.Buffer
	payload.Grow(b.size)
	for _, frag := range b.fragments {
		payload.Write(frag)
	}
	b.fragments = nil
	b.size = 0
	return payload.Bytes()
}

// Reset discards any fragments and re-arms the buffer for a new recording
func (b *FragmentBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.fragments = nil
	b.size = 0
	b.drained = false
}

// Len returns the number of buffered fragments
func (b *FragmentBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fragments)
}

// Size returns the number of buffered bytes
func (b *FragmentBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}
