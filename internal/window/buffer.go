// Package window keeps the rolling window of recent audio chunks that feeds
// inference and playback.
package window

import (
	"sync"

	list "github.com/bahlo/generic-list-go"
)

// Buffer is a bounded FIFO of audio chunks. When full, appending evicts the
// oldest chunk first, so the buffer always holds the most recent Cap() chunks
// in capture order.
//
// Append and Clear take the write lock; Flatten and Chunks copy under the
// read lock, so readers never see a half-applied append.
type Buffer struct {
	mu        sync.RWMutex
	chunks    *list.List[[]float32]
	maxChunks int
	samples   int
}

// New returns an empty buffer holding at most maxChunks chunks.
// maxChunks below 1 is treated as 1.
func New(maxChunks int) *Buffer {
	if maxChunks < 1 {
		maxChunks = 1
	}
	return &Buffer{
		chunks:    list.New[[]float32](),
		maxChunks: maxChunks,
	}
}

// Append adds chunk at the tail, evicting the head when at capacity.
// The buffer takes ownership of chunk; callers must not modify it afterwards.
func (b *Buffer) Append(chunk []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.chunks.Len() >= b.maxChunks {
		oldest := b.chunks.Remove(b.chunks.Front())
		b.samples -= len(oldest)
	}
	b.chunks.PushBack(chunk)
	b.samples += len(chunk)
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks.Init()
	b.samples = 0
}

// Flatten returns exactly targetLength samples: the buffered chunks
// concatenated oldest to newest, zero-padded at the tail when short. If more
// than targetLength samples are buffered only the most recent are kept.
func (b *Buffer) Flatten(targetLength int) []float32 {
	if targetLength <= 0 {
		return []float32{}
	}
	out := make([]float32, targetLength)

	b.mu.RLock()
	defer b.mu.RUnlock()

	skip := b.samples - targetLength
	pos := 0
	for e := b.chunks.Front(); e != nil && pos < targetLength; e = e.Next() {
		chunk := e.Value
		if skip >= len(chunk) {
			skip -= len(chunk)
			continue
		}
		if skip > 0 {
			chunk = chunk[skip:]
			skip = 0
		}
		pos += copy(out[pos:], chunk)
	}
	return out
}

// Chunks returns a copy of the buffered chunks in capture order.
func (b *Buffer) Chunks() [][]float32 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([][]float32, 0, b.chunks.Len())
	for e := b.chunks.Front(); e != nil; e = e.Next() {
		c := make([]float32, len(e.Value))
		copy(c, e.Value)
		out = append(out, c)
	}
	return out
}

// Len returns the number of buffered chunks.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.chunks.Len()
}

// Cap returns the maximum number of chunks.
func (b *Buffer) Cap() int {
	return b.maxChunks
}

// Samples returns the total number of buffered samples.
func (b *Buffer) Samples() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.samples
}
