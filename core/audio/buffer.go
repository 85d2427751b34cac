package audio

import (
	"sync"
	"time"
)

const (
	// DefaultChunkDuration is how much microphone audio goes into one
	// user_audio_chunk.
	DefaultChunkDuration = 100 * time.Millisecond
	// DefaultMaxBuffered bounds agent audio waiting for the speaker.
	DefaultMaxBuffered = 30 * time.Second
)

// bytesFor returns the whole-sample byte count closest to d at encoding.
func bytesFor(encoding EncodingInfo, d time.Duration) int {
	sampleSize := encoding.Format.ByteSize()
	if sampleSize <= 0 || encoding.SampleRate <= 0 || d <= 0 {
		return 0
	}
	samples := int(time.Duration(encoding.SampleRate) * d / time.Second)
	return samples * sampleSize
}

// Chunker groups captured audio into chunks of a fixed duration. It is not
// safe for concurrent use; capture callbacks are serial.
type Chunker struct {
	size int
	buf  []byte
}

func NewChunker(encoding EncodingInfo, duration time.Duration) *Chunker {
	size := bytesFor(encoding, duration)
	if size <= 0 {
		size = bytesFor(GetDefaultEncodingInfo(), DefaultChunkDuration)
	}
	return &Chunker{size: size, buf: make([]byte, 0, size)}
}

// Size is the chunk length in bytes.
func (c *Chunker) Size() int { return c.size }

// Write appends captured audio and calls emit for every completed chunk.
// Emitted chunks are owned by the callee.
func (c *Chunker) Write(audio []byte, emit func(chunk []byte)) {
	for len(audio) > 0 {
		n := min(c.size-len(c.buf), len(audio))
		c.buf = append(c.buf, audio[:n]...)
		audio = audio[n:]
		if len(c.buf) == c.size {
			emit(c.buf)
			c.buf = make([]byte, 0, c.size)
		}
	}
}

// Flush emits the partial chunk, if any.
func (c *Chunker) Flush(emit func(chunk []byte)) {
	if len(c.buf) == 0 {
		return
	}
	emit(c.buf)
	c.buf = make([]byte, 0, c.size)
}

// Reset drops the partial chunk.
func (c *Chunker) Reset() {
	c.buf = c.buf[:0]
}

// PlaybackQueue holds agent audio until the output device consumes it. When
// more than the configured maximum is queued the oldest audio is dropped.
type PlaybackQueue struct {
	encoding EncodingInfo
	limit    int

	mu   sync.Mutex
	data []byte
}

func NewPlaybackQueue(encoding EncodingInfo, maxBuffered time.Duration) *PlaybackQueue {
	return &PlaybackQueue{encoding: encoding, limit: bytesFor(encoding, maxBuffered)}
}

// Push queues audio and returns how many bytes of old audio were dropped to
// make room.
func (q *PlaybackQueue) Push(audio []byte) (dropped int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.data = append(q.data, audio...)
	if q.limit > 0 && len(q.data) > q.limit {
		dropped = len(q.data) - q.limit
		if sampleSize := q.encoding.Format.ByteSize(); sampleSize > 1 {
			dropped += (sampleSize - dropped%sampleSize) % sampleSize
		}
		q.data = q.data[dropped:]
	}
	return dropped
}

// Read fills out with queued audio and pads the rest with silence. It
// returns the number of queued bytes consumed.
func (q *PlaybackQueue) Read(out []byte) int {
	q.mu.Lock()
	n := copy(out, q.data)
	q.data = q.data[n:]
	q.mu.Unlock()

	silence := q.encoding.SilenceValue()
	for i := n; i < len(out); i++ {
		out[i] = silence
	}
	return n
}

// Next removes and returns exactly size bytes, or false when less is queued.
func (q *PlaybackQueue) Next(size int) ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if size <= 0 || len(q.data) < size {
		return nil, false
	}
	block := make([]byte, size)
	copy(block, q.data)
	q.data = q.data[size:]
	return block, true
}

func (q *PlaybackQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.data = nil
}

// Buffered is the playback time of the queued audio.
func (q *PlaybackQueue) Buffered() time.Duration {
	q.mu.Lock()
	n := len(q.data)
	q.mu.Unlock()

	rate := q.encoding.BytesPerSecond()
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}
