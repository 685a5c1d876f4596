package ingestion_engine

import (
	"strings"
)

const (
	DefaultChunkTokens   = 1024
	DefaultOverlapTokens = 50
)

// DefaultSeparators are tried in order: paragraph, sentence, line.
var DefaultSeparators = []string{"\n\n", ".", "\n"}

// Chunk is one token-bounded window of a document.
//
// Start and End are byte offsets into the source text, so Text == src[Start:End].
// Consecutive chunks either touch (next.Start == prev.End) or overlap.
type Chunk struct {
	Index  int
	Text   string
	Start  int
	End    int
	Tokens int
}

// TextSplitter splits text on a priority list of separators, merging pieces
// into chunks of at most chunkTokens tokens with up to overlapTokens carried over.
type TextSplitter struct {
	counter       TokenCounter
	chunkTokens   int
	overlapTokens int
	separators    []string
}

// SplitterOption configures a TextSplitter.
type SplitterOption func(*TextSplitter)

func WithChunkTokens(n int) SplitterOption {
	return func(s *TextSplitter) {
		if n > 0 {
			s.chunkTokens = n
		}
	}
}

func WithOverlapTokens(n int) SplitterOption {
	return func(s *TextSplitter) {
		if n >= 0 {
			s.overlapTokens = n
		}
	}
}

// WithSeparators replaces the separator priority list. Empty separators are ignored.
func WithSeparators(seps ...string) SplitterOption {
	return func(s *TextSplitter) {
		var kept []string
		for _, sep := range seps {
			if sep != "" {
				kept = append(kept, sep)
			}
		}
		if len(kept) > 0 {
			s.separators = kept
		}
	}
}

func NewTextSplitter(counter TokenCounter, opts ...SplitterOption) *TextSplitter {
	if counter == nil {
		counter = ApproxCounter{}
	}
	s := &TextSplitter{
		counter:       counter,
		chunkTokens:   DefaultChunkTokens,
		overlapTokens: DefaultOverlapTokens,
		separators:    DefaultSeparators,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Overlap must leave room for new content in every chunk.
	if s.overlapTokens >= s.chunkTokens {
		s.overlapTokens = s.chunkTokens / 4
	}
	return s
}

func (s *TextSplitter) ChunkTokens() int   { return s.chunkTokens }
func (s *TextSplitter) OverlapTokens() int { return s.overlapTokens }

type span struct{ start, end int }

// Split cuts text into ordered chunks. Empty text yields no chunks.
// Every byte of text lands in at least one chunk and no chunk exceeds the
// token limit, unless a single rune alone does.
func (s *TextSplitter) Split(text string) []Chunk {
	if text == "" {
		return nil
	}

	spans := s.splitRange(text, 0, len(text), s.separators)
	chunks := make([]Chunk, 0, len(spans))
	for i, sp := range spans {
		t := text[sp.start:sp.end]
		chunks = append(chunks, Chunk{
			Index:  i,
			Text:   t,
			Start:  sp.start,
			End:    sp.end,
			Tokens: s.counter.CountTokens(t),
		})
	}
	return chunks
}

func (s *TextSplitter) count(text string, start, end int) int {
	return s.counter.CountTokens(text[start:end])
}

func (s *TextSplitter) splitRange(text string, start, end int, seps []string) []span {
	if s.count(text, start, end) <= s.chunkTokens {
		return []span{{start, end}}
	}

	seg := text[start:end]
	sep, rest := "", []string(nil)
	for i, cand := range seps {
		if strings.Contains(seg, cand) {
			sep, rest = cand, seps[i+1:]
			break
		}
	}
	if sep == "" {
		return s.hardSplit(text, start, end)
	}

	return s.merge(text, pieces(seg, sep, start), rest)
}

// pieces cuts seg after every occurrence of sep; the separator stays on the
// preceding piece. offset shifts the spans into source coordinates.
func pieces(seg, sep string, offset int) []span {
	var out []span
	from := 0
	for {
		i := strings.Index(seg[from:], sep)
		if i < 0 {
			break
		}
		cut := from + i + len(sep)
		out = append(out, span{offset + from, offset + cut})
		from = cut
	}
	if from < len(seg) {
		out = append(out, span{offset + from, offset + len(seg)})
	}
	return out
}

// merge greedily packs adjacent pieces into windows, recursing on pieces that
// are too big on their own.
func (s *TextSplitter) merge(text string, parts []span, rest []string) []span {
	var (
		out  []span
		held []span
	)
	window := func() span { return span{held[0].start, held[len(held)-1].end} }

	for _, p := range parts {
		if s.count(text, p.start, p.end) > s.chunkTokens {
			if len(held) > 0 {
				out = append(out, window())
				held = held[:0]
			}
			out = append(out, s.splitRange(text, p.start, p.end, rest)...)
			continue
		}

		if len(held) > 0 && s.count(text, held[0].start, p.end) > s.chunkTokens {
			out = append(out, window())
			// Drop leading pieces until the tail fits as overlap and leaves room for p.
			for len(held) > 0 {
				w := window()
				if s.count(text, w.start, w.end) <= s.overlapTokens &&
					s.count(text, w.start, p.end) <= s.chunkTokens {
					break
				}
				held = held[1:]
			}
		}
		held = append(held, p)
	}
	if len(held) > 0 {
		out = append(out, window())
	}
	return out
}

// hardSplit cuts on rune boundaries when no separator is left.
func (s *TextSplitter) hardSplit(text string, start, end int) []span {
	bounds := make([]int, 0, end-start+1)
	for i := range text[start:end] {
		bounds = append(bounds, start+i)
	}
	bounds = append(bounds, end)
	last := len(bounds) - 1

	var out []span
	lo := 0
	for lo < last {
		hi := s.fit(text, bounds, lo)
		out = append(out, span{bounds[lo], bounds[hi]})
		if hi == last {
			break
		}

		next := hi
		if s.overlapTokens > 0 {
			next = s.overlapStart(text, bounds, lo, hi)
			// The next window has to reach past this one or the overlap is pointless.
			if s.fit(text, bounds, next) <= hi {
				next = hi
			}
		}
		lo = next
	}
	return out
}

// fit returns the largest index hi > lo such that text[bounds[lo]:bounds[hi]]
// fits the token limit, or lo+1 when even one rune does not.
func (s *TextSplitter) fit(text string, bounds []int, lo int) int {
	last := len(bounds) - 1
	good := lo + 1
	if s.count(text, bounds[lo], bounds[good]) > s.chunkTokens {
		return good
	}
	bad := last + 1
	for bad-good > 1 {
		mid := (good + bad) / 2
		if s.count(text, bounds[lo], bounds[mid]) <= s.chunkTokens {
			good = mid
		} else {
			bad = mid
		}
	}
	return good
}

// overlapStart returns the smallest index n in (lo, hi] such that
// text[bounds[n]:bounds[hi]] fits the overlap budget.
func (s *TextSplitter) overlapStart(text string, bounds []int, lo, hi int) int {
	good, bad := hi, lo
	for good-bad > 1 {
		mid := (good + bad) / 2
		if s.count(text, bounds[mid], bounds[hi]) <= s.overlapTokens {
			good = mid
		} else {
			bad = mid
		}
	}
	return good
}
