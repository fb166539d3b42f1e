package summarytree

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Sentinel is a non-numeric query answer telling the caller to render
// features itself instead of using block counts.
type Sentinel string

const (
	// Detail: render every feature at full detail.
	Detail Sentinel = "detail"
	// Draw: render the individual features.
	Draw Sentinel = "draw"
)

// Block is the coverage count of one block; Pos is the block's first base.
type Block struct {
	Pos   int64
	Count int64
}

// Result is the answer to a query: either a Sentinel or a list of blocks
// ordered by position.
type Result struct {
	Sentinel Sentinel
	Blocks   []Block
}

// IsSentinel reports whether r carries a sentinel rather than block counts.
func (r *Result) IsSentinel() bool { return r.Sentinel != "" }

// MarshalJSON encodes r the way the track viewer expects it: the bare
// sentinel string, or a list of [pos, count] pairs.
func (r *Result) MarshalJSON() ([]byte, error) {
	if r.IsSentinel() {
		return json.Marshal(string(r.Sentinel))
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, b := range r.Blocks {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('[')
		buf.WriteString(strconv.FormatInt(b.Pos, 10))
		buf.WriteByte(',')
		buf.WriteString(strconv.FormatInt(b.Count, 10))
		buf.WriteByte(']')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
