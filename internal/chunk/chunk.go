// Package chunk splits large message payloads into ordered blocks and
// reassembles them on the receiving side.
package chunk

import "strings"

const (
	// DefaultMaxChunk bounds the data part of one outbound decrypt request.
	// A single relay message may not exceed 4 GiB.
	DefaultMaxChunk = 3 * 1024 * 1024 * 1024
	// AgentMaxChunk bounds the data part of one decrypt response from the agent.
	AgentMaxChunk = 750 * 1024
)

// Chunk is one bounded slice of a message payload.
type Chunk struct {
	MessageID string
	Data      string
	Last      bool
}

// Span is the half-open byte range [Start, End) of one chunk.
type Span struct {
	Start int64
	End   int64
}

// Spans returns the ranges that split a payload of the given length into
// ceil(length/max) chunks. Every span but the last is exactly max long. An
// empty payload yields a single empty span.
func Spans(length, max int64) []Span {
	if max <= 0 {
		max = length
	}
	if length <= max {
		return []Span{{Start: 0, End: length}}
	}
	n := (length + max - 1) / max
	out := make([]Span, 0, n)
	for start := int64(0); start < length; start += max {
		end := start + max
		if end > length {
			end = length
		}
		out = append(out, Span{Start: start, End: end})
	}
	return out
}

// Encode splits payload by raw length into chunks of at most max bytes, all
// tagged with id. Only the final chunk has Last set.
func Encode(id, payload string, max int) []Chunk {
	spans := Spans(int64(len(payload)), int64(max))
	out := make([]Chunk, len(spans))
	for i, s := range spans {
		out[i] = Chunk{
			MessageID: id,
			Data:      payload[s.Start:s.End],
			Last:      i == len(spans)-1,
		}
	}
	return out
}

// Assembler accumulates partial payloads keyed by message id. Chunks for one
// id must be added in send order; different ids may interleave. Not safe for
// concurrent use.
type Assembler struct {
	pending map[string]*strings.Builder
}

// NewAssembler returns an empty Assembler.
func NewAssembler() *Assembler {
	return &Assembler{pending: make(map[string]*strings.Builder)}
}

// Add appends data for id. When last is true it returns the whole payload
// and drops the accumulator; otherwise it reports complete=false.
func (a *Assembler) Add(id, data string, last bool) (payload string, complete bool) {
	b, ok := a.pending[id]
	if !last {
		if !ok {
			b = &strings.Builder{}
			a.pending[id] = b
		}
		b.WriteString(data)
		return "", false
	}
	if !ok {
		return data, true
	}
	delete(a.pending, id)
	b.WriteString(data)
	return b.String(), true
}

// Pending returns the number of messages still waiting for their last chunk.
func (a *Assembler) Pending() int {
	return len(a.pending)
}

// Drop discards any partial payload for id.
func (a *Assembler) Drop(id string) {
	delete(a.pending, id)
}
