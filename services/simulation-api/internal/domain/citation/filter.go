// Package citation strips provider citation markers such as 【4:0†source】
// from streamed text.
package citation

import "strings"

// Delimiters bound a citation span.
type Delimiters struct {
	Open  string
	Close string
}

// DefaultDelimiters matches the file_search annotation markers.
var DefaultDelimiters = Delimiters{Open: "【", Close: "】"}

type state int

const (
	statePassthrough state = iota
	stateSuppressing
)

// Filter removes delimited spans from a stream of chunks. Delimiters may be
// split across chunk boundaries; the output does not depend on how the input
// was chunked. A span still open when the stream ends is dropped.
//
// A Filter is not safe for concurrent use.
type Filter struct {
	delims  Delimiters
	state   state
	pending string
}

// NewFilter returns a filter in passthrough state. Empty delimiters fall back
// to DefaultDelimiters.
func NewFilter(d Delimiters) *Filter {
	if d.Open == "" || d.Close == "" {
		d = DefaultDelimiters
	}
	return &Filter{delims: d}
}

// Write consumes a chunk and returns the text that can be emitted now.
func (f *Filter) Write(chunk string) string {
	buf := f.pending + chunk
	f.pending = ""

	var out strings.Builder
	for len(buf) > 0 {
		if f.state == statePassthrough {
			if i := strings.Index(buf, f.delims.Open); i >= 0 {
				out.WriteString(buf[:i])
				buf = buf[i+len(f.delims.Open):]
				f.state = stateSuppressing
				continue
			}
			keep := partialSuffix(buf, f.delims.Open)
			out.WriteString(buf[:len(buf)-keep])
			f.pending = buf[len(buf)-keep:]
			break
		}

		if i := strings.Index(buf, f.delims.Close); i >= 0 {
			buf = buf[i+len(f.delims.Close):]
			f.state = statePassthrough
			continue
		}
		keep := partialSuffix(buf, f.delims.Close)
		f.pending = buf[len(buf)-keep:]
		break
	}
	return out.String()
}

// Flush ends the stream and resets the filter. Held-back text that turned out
// not to open a span is returned; an unterminated span is discarded.
func (f *Filter) Flush() string {
	var out string
	if f.state == statePassthrough {
		out = f.pending
	}
	f.pending = ""
	f.state = statePassthrough
	return out
}

// Strip filters a complete string.
func Strip(s string, d Delimiters) string {
	f := NewFilter(d)
	return f.Write(s) + f.Flush()
}

// partialSuffix returns the length of the longest proper prefix of delim that
// s ends with.
func partialSuffix(s, delim string) int {
	n := len(delim) - 1
	if n > len(s) {
		n = len(s)
	}
	for k := n; k > 0; k-- {
		if strings.HasSuffix(s, delim[:k]) {
			return k
		}
	}
	return 0
}
