package textclean

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Cleaner normalizes extracted text before chunking. Clean is pure and
// idempotent.
type Cleaner struct{}

func New() *Cleaner {
	return &Cleaner{}
}

var (
	invisibleReplacer = strings.NewReplacer(
		"\u00ad", "", // soft hyphen
		"\u200b", "",
		"\u200c", "",
		"\u200d", "",
		"\u2060", "",
		"\ufeff", "",
		"\ufffd", "",
	)
	ligatureReplacer = strings.NewReplacer(
		"\ufb00", "ff",
		"\ufb01", "fi",
		"\ufb02", "fl",
		"\ufb03", "ffi",
		"\ufb04", "ffl",
	)
	spaceReplacer = strings.NewReplacer(
		"\r\n", "\n",
		"\r", "\n",
		"\f", "\n",
		"\v", "\n",
		"\u00a0", " ",
		"\u2009", " ",
		"\u202f", " ",
	)
	quoteReplacer = strings.NewReplacer(
		"\u201c", `"`,
		"\u201d", `"`,
		"\u201e", `"`,
		"\u201f", `"`,
		"\u00ab", `"`,
		"\u00bb", `"`,
		"\u2033", `"`,
		"\u2018", "'",
		"\u2019", "'",
		"\u201a", "'",
		"\u2032", "'",
	)

	// word-\nword produced by line-wrapped scans
	hyphenBreakRe = regexp.MustCompile(`(\pL)-[ \t]*\n[ \t]*(\p{Ll})`)
	// rule lines and stray dash or bullet fragments
	noiseLineRe   = regexp.MustCompile(`^[ \t]*(?:(?:[-\x{2013}\x{2014}_=~*.\x{2022}\x{00b7}][ \t]*){3,}|[-\x{2013}\x{2014}\x{2022}\x{00b7}|][ \t]*)$`)
	innerSpaceRe  = regexp.MustCompile(`[ \t]{2,}|\t`)
	spaceBeforeRe = regexp.MustCompile(`[ \t]+([,.;:!?])`)
	doubledRe     = regexp.MustCompile(`([,;:!?])[,;:!?]+`)
	dotsRe        = regexp.MustCompile(`\.{2,}`)
	markerLineRe  = regexp.MustCompile(`^=== [^=\n]+ ===$`)
)

func (c *Cleaner) Clean(raw string) string {
	if raw == "" {
		return ""
	}
	text := stripControl(raw)
	text = norm.NFC.String(text)
	text = removeOCRArtifacts(text)
	text = normalizeWhitespace(text)
	text = normalizePunctuation(text)
	return strings.Trim(text, "\n")
}

func stripControl(s string) string {
	s = spaceReplacer.Replace(s)
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n':
			return r
		case unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, s)
}

func removeOCRArtifacts(s string) string {
	s = invisibleReplacer.Replace(s)
	s = ligatureReplacer.Replace(s)
	s = hyphenBreakRe.ReplaceAllString(s, "$1$2")
	// Page markers look like rule lines; protect them.
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if isMarkerLine(line) {
			continue
		}
		if noiseLineRe.MatchString(line) {
			lines[i] = ""
		}
	}
	return strings.Join(lines, "\n")
}

// normalizeWhitespace collapses inner runs, strips trailing spaces and up to
// three columns of indentation, and keeps at most two consecutive blank lines.
// Deeper indentation is kept, with tabs expanded to four spaces.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		width, n := indentation(line)
		body := innerSpaceRe.ReplaceAllString(line[n:], " ")
		if width > 3 {
			line = strings.Repeat(" ", width) + body
		} else {
			line = body
		}

		if line == "" {
			blank++
			if blank > 2 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func normalizePunctuation(s string) string {
	s = quoteReplacer.Replace(s)
	s = spaceBeforeRe.ReplaceAllString(s, "$1")
	// Keep the first mark of a run: ",," and ",;" become ",".
	s = doubledRe.ReplaceAllString(s, "$1")
	s = dotsRe.ReplaceAllStringFunc(s, func(m string) string {
		if len(m) == 2 {
			return "."
		}
		return "..."
	})
	return s
}

// indentation returns the column width of the leading blanks and their byte length.
func indentation(line string) (width, n int) {
	for n < len(line) {
		switch line[n] {
		case ' ':
			width++
		case '\t':
			width += 4
		default:
			return width, n
		}
		n++
	}
	return width, n
}

func isMarkerLine(line string) bool {
	return markerLineRe.MatchString(strings.TrimSpace(line))
}

var sectionMarkerRe = regexp.MustCompile(`(?m)^=== (?:Page|Slide|Sheet|Image)\b[^=\n]* ===$`)

// Deduplicate drops page, slide, sheet or image sections whose normalized
// prefix of signatureChars characters was already seen. Sections that differ
// only after the prefix are dropped too; the match is approximate.
func (c *Cleaner) Deduplicate(text string, signatureChars int) string {
	if signatureChars <= 0 {
		signatureChars = 200
	}
	bounds := sectionMarkerRe.FindAllStringIndex(text, -1)
	if len(bounds) < 2 {
		return text
	}

	starts := make([]int, 0, len(bounds)+1)
	if bounds[0][0] > 0 {
		starts = append(starts, 0)
	}
	for _, b := range bounds {
		starts = append(starts, b[0])
	}

	seen := make(map[string]struct{}, len(starts))
	var b strings.Builder
	for i, start := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		section := text[start:end]
		sig := signature(sectionBody(section), signatureChars)
		if sig != "" {
			if _, dup := seen[sig]; dup {
				continue
			}
			seen[sig] = struct{}{}
		}
		b.WriteString(section)
	}
	return strings.TrimRight(b.String(), "\n")
}

func sectionBody(section string) string {
	if loc := sectionMarkerRe.FindStringIndex(section); loc != nil && loc[0] == 0 {
		return section[loc[1]:]
	}
	return section
}

func signature(body string, n int) string {
	sig := strings.Join(strings.Fields(strings.ToLower(body)), " ")
	r := []rune(sig)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
