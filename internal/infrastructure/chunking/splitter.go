package chunking

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
	"github.com/alikoudar/irobot-sub000/internal/core/ports"
)

const boundaryWindowRunes = 100

// separator is one level of the cascade. cuts returns the byte offsets just
// after each occurrence, so the pieces concatenate back to the input.
type separator struct {
	name    string
	literal string
	re      *regexp.Regexp
}

func (s separator) cuts(text string) []int {
	var out []int
	if s.re != nil {
		for _, loc := range s.re.FindAllStringIndex(text, -1) {
			if loc[1] < len(text) {
				out = append(out, loc[1])
			}
		}
		return out
	}
	from := 0
	for {
		i := strings.Index(text[from:], s.literal)
		if i < 0 {
			return out
		}
		end := from + i + len(s.literal)
		if end < len(text) {
			out = append(out, end)
		}
		from = end
	}
}

var (
	sentenceEndRe = regexp.MustCompile(`[.!?]+["')\]]*\s+`)
	clauseRe      = regexp.MustCompile(`[;,]\s+`)
	wordRe        = regexp.MustCompile(`\s+`)
	boundaryRe    = regexp.MustCompile(`[.!?]+["')\]]*(?:\s|$)`)
	pageMarkerRe  = regexp.MustCompile(`(?m)^=== (?:Page|Slide) (\d+) ===$`)
	headingRe     = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+)$`)

	cascade = []separator{
		{name: "paragraph", literal: "\n\n"},
		{name: "line", literal: "\n"},
		{name: "sentence", re: sentenceEndRe},
		{name: "clause", re: clauseRe},
		{name: "word", re: wordRe},
	}
)

// RecursiveSplitter cuts text on the coarsest separator that occurs, merges
// pieces greedily up to the token target and seeds each chunk with the tail
// of the previous one. Pieces that are still too large go down the cascade;
// below words it slices fixed character windows.
type RecursiveSplitter struct {
	counter ports.TokenCounter
}

func NewRecursiveSplitter(counter ports.TokenCounter) *RecursiveSplitter {
	return &RecursiveSplitter{counter: counter}
}

type span struct {
	start, end int
}

type run struct {
	text    string
	counter ports.TokenCounter
	params  domain.ChunkParams
}

func (s *RecursiveSplitter) Chunk(documentID, text string, params domain.ChunkParams) []domain.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	r := &run{text: text, counter: s.counter, params: normalizeParams(params)}

	spans := r.split(span{0, len(text)}, cascade)
	spans = r.trim(spans)
	if r.params.OptimizeBoundaries {
		spans = r.optimizeBoundaries(spans)
	}
	spans = r.foldShort(spans)
	return r.build(documentID, spans)
}

func normalizeParams(p domain.ChunkParams) domain.ChunkParams {
	def := domain.DefaultSettings().ChunkParams()
	if p.TargetTokens <= 0 {
		p.TargetTokens = def.TargetTokens
	}
	if p.OverlapTokens < 0 || p.OverlapTokens >= p.TargetTokens {
		p.OverlapTokens = p.TargetTokens / 10
	}
	if p.MinChars < 0 {
		p.MinChars = 0
	}
	return p
}

func (r *run) count(sp span) int {
	return r.counter.Count(r.text[sp.start:sp.end])
}

func (r *run) split(sp span, seps []separator) []span {
	if r.count(sp) <= r.params.TargetTokens {
		return []span{sp}
	}
	segment := r.text[sp.start:sp.end]
	for i, sep := range seps {
		cuts := sep.cuts(segment)
		if len(cuts) == 0 {
			continue
		}
		pieces := make([]span, 0, len(cuts)+1)
		prev := 0
		for _, c := range cuts {
			pieces = append(pieces, span{sp.start + prev, sp.start + c})
			prev = c
		}
		pieces = append(pieces, span{sp.start + prev, sp.end})
		return r.mergeSplits(pieces, seps[i+1:])
	}
	return r.windows(sp)
}

// mergeSplits merges runs of small pieces and recurses into oversized ones.
func (r *run) mergeSplits(pieces []span, rest []separator) []span {
	var out, small []span
	for _, p := range pieces {
		if r.count(p) <= r.params.TargetTokens {
			small = append(small, p)
			continue
		}
		if len(small) > 0 {
			out = append(out, r.merge(small)...)
			small = nil
		}
		out = append(out, r.split(p, rest)...)
	}
	if len(small) > 0 {
		out = append(out, r.merge(small)...)
	}
	return out
}

// merge accumulates contiguous pieces into chunks of at most TargetTokens.
// After closing a chunk the buffer is seeded with its trailing words worth at
// most OverlapTokens as the head of the next one.
func (r *run) merge(pieces []span) []span {
	target := r.params.TargetTokens
	var (
		out   []span
		buf   []span
		total int
	)
	for _, p := range pieces {
		n := r.count(p)
		if len(buf) > 0 && total+n > target {
			closed := span{buf[0].start, buf[len(buf)-1].end}
			out = append(out, closed)
			buf, total = nil, 0
			if head, tokens := r.carry(closed); tokens > 0 && tokens+n <= target {
				buf, total = []span{head}, tokens
			}
		}
		buf = append(buf, p)
		total += n
	}
	if len(buf) > 0 {
		out = append(out, span{buf[0].start, buf[len(buf)-1].end})
	}
	return out
}

// carry returns the longest word-aligned tail of sp holding at most
// OverlapTokens, with its token count. The count is zero when not even the
// last word fits.
func (r *run) carry(sp span) (span, int) {
	overlap := r.params.OverlapTokens
	if overlap <= 0 {
		return span{sp.end, sp.end}, 0
	}
	best, bestTokens := span{sp.end, sp.end}, 0
	cuts := wordRe.FindAllStringIndex(r.text[sp.start:sp.end], -1)
	for i := len(cuts) - 1; i >= 0; i-- {
		head := span{sp.start + cuts[i][1], sp.end}
		if head.start >= head.end {
			continue
		}
		n := r.count(head)
		if n > overlap {
			break
		}
		best, bestTokens = head, n
	}
	return best, bestTokens
}

// windows slices fixed rune windows for text with no usable separator.
func (r *run) windows(sp span) []span {
	offsets := runeOffsets(r.text, sp)
	n := len(offsets) - 1
	size := r.params.TargetTokens * 4
	if size > n {
		size = n
	}
	for size > 1 && r.count(span{offsets[0], offsets[size]}) > r.params.TargetTokens {
		size /= 2
	}
	step := size - r.params.OverlapTokens*4*size/(r.params.TargetTokens*4)
	if step <= 0 {
		step = size
	}

	var out []span
	for start := 0; start < n; start += step {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, span{offsets[start], offsets[end]})
		if end == n {
			break
		}
	}
	return out
}

// runeOffsets maps rune positions within sp to byte offsets, with a final
// entry for sp.end.
func runeOffsets(text string, sp span) []int {
	out := make([]int, 0, sp.end-sp.start+1)
	for i := range text[sp.start:sp.end] {
		out = append(out, sp.start+i)
	}
	return append(out, sp.end)
}

func (r *run) trim(spans []span) []span {
	out := spans[:0]
	for _, sp := range spans {
		sp = r.trimSpan(sp)
		if sp.end > sp.start {
			out = append(out, sp)
		}
	}
	return out
}

func (r *run) trimSpan(sp span) span {
	for sp.start < sp.end {
		c, size := utf8.DecodeRuneInString(r.text[sp.start:sp.end])
		if !unicode.IsSpace(c) {
			break
		}
		sp.start += size
	}
	for sp.end > sp.start {
		c, size := utf8.DecodeLastRuneInString(r.text[sp.start:sp.end])
		if !unicode.IsSpace(c) {
			break
		}
		sp.end -= size
	}
	return sp
}

// optimizeBoundaries ends every chunk but the last at the right-most sentence
// end in its closing characters. The cut remainder moves to the head of the
// next chunk, behind the overlap carried from the shortened chunk.
func (r *run) optimizeBoundaries(spans []span) []span {
	for i := 0; i < len(spans)-1; i++ {
		sp := spans[i]
		tail := sp.end
		for k := 0; k < boundaryWindowRunes && tail > sp.start; k++ {
			_, size := utf8.DecodeLastRuneInString(r.text[sp.start:tail])
			tail -= size
		}
		locs := boundaryRe.FindAllStringIndex(r.text[tail:sp.end], -1)
		if len(locs) == 0 {
			continue
		}
		cut := tail + locs[len(locs)-1][1]
		cut = r.trimSpan(span{sp.start, cut}).end
		if cut <= sp.start || cut >= sp.end {
			continue
		}
		spans[i].end = cut
		if spans[i+1].start > cut {
			start := cut
			if head, tokens := r.carry(spans[i]); tokens > 0 {
				start = head.start
			}
			spans[i+1].start = start
			spans[i+1] = r.trimSpan(spans[i+1])
		}
	}
	return spans
}

// foldShort merges chunks under MinChars into a neighbour instead of dropping
// them, so the receiving chunk may exceed TargetTokens by the folded fragment.
// A single fragment remains when the whole text is shorter than MinChars.
func (r *run) foldShort(spans []span) []span {
	minChars := r.params.MinChars
	if minChars <= 0 || len(spans) == 0 {
		return spans
	}
	out := make([]span, 0, len(spans))
	pending := -1
	for _, sp := range spans {
		if pending >= 0 && pending < sp.start {
			sp.start = pending
		}
		pending = -1
		if utf8.RuneCountInString(r.text[sp.start:sp.end]) >= minChars {
			out = append(out, sp)
			continue
		}
		if len(out) > 0 {
			if last := &out[len(out)-1]; sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		pending = sp.start
	}
	if pending >= 0 {
		out = append(out, span{pending, spans[len(spans)-1].end})
	}
	return out
}

type marker struct {
	pos   int
	value string
}

func findMarkers(text string, re *regexp.Regexp) []marker {
	var out []marker
	for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, marker{pos: m[0], value: strings.TrimSpace(text[m[2]:m[3]])})
	}
	return out
}

// markerFor returns the first marker inside sp, or else the last one before it.
func markerFor(markers []marker, sp span) (string, bool) {
	var before string
	found := false
	for _, m := range markers {
		if m.pos >= sp.end {
			break
		}
		if m.pos >= sp.start {
			return m.value, true
		}
		before, found = m.value, true
	}
	return before, found
}

func (r *run) build(documentID string, spans []span) []domain.Chunk {
	pages := findMarkers(r.text, pageMarkerRe)
	headings := findMarkers(r.text, headingRe)

	out := make([]domain.Chunk, 0, len(spans))
	runeStart, prevStart := 0, 0
	for i, sp := range spans {
		runeStart += utf8.RuneCountInString(r.text[prevStart:sp.start])
		prevStart = sp.start

		text := r.text[sp.start:sp.end]
		chars := utf8.RuneCountInString(text)
		start, end := runeStart, runeStart+chars
		chunk := domain.Chunk{
			DocumentID:  documentID,
			Index:       i,
			Text:        text,
			TokenCount:  r.counter.Count(text),
			CharCount:   chars,
			StartOffset: &start,
			EndOffset:   &end,
			Metadata:    map[string]string{},
		}
		if v, ok := markerFor(pages, sp); ok {
			if page, err := strconv.Atoi(v); err == nil {
				chunk.PageNumber = &page
			}
		}
		if v, ok := markerFor(headings, sp); ok {
			chunk.Metadata["section"] = v
		}
		out = append(out, chunk)
	}
	return out
}
