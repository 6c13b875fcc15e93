package html

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var skipped = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
}

var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Table: true, atom.Ul: true, atom.Ol: true, atom.Pre: true, atom.Blockquote: true,
}

var headingLevel = map[atom.Atom]int{
	atom.H1: 1, atom.H2: 2, atom.H3: 3, atom.H4: 4, atom.H5: 5, atom.H6: 6,
}

// Extract returns the visible text of an HTML document. Block elements end
// lines and headings are rendered as markdown headings so chunks can carry
// their section.
func Extract(raw []byte) (string, error) {
	root, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var b strings.Builder
	pre := 0
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if pre > 0 {
				b.WriteString(n.Data)
			} else {
				b.WriteString(collapseSpace(n.Data))
			}
			return
		case html.ElementNode:
			if skipped[n.DataAtom] {
				return
			}
			if blocks[n.DataAtom] {
				b.WriteString("\n")
			}
			if level, ok := headingLevel[n.DataAtom]; ok {
				b.WriteString(strings.Repeat("#", level) + " ")
			}
			if n.DataAtom == atom.Td || n.DataAtom == atom.Th {
				b.WriteString("\t")
			}
			if n.DataAtom == atom.Pre {
				pre++
				defer func() { pre-- }()
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blocks[n.DataAtom] {
			b.WriteString("\n")
		}
	}
	walk(root)

	return tidy(b.String()), nil
}

// collapseSpace folds whitespace runs, newlines included, into one space.
func collapseSpace(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		if text == "" {
			return ""
		}
		return " "
	}
	out := strings.Join(words, " ")
	if strings.TrimLeftFunc(text, unicode.IsSpace) != text {
		out = " " + out
	}
	if strings.TrimRightFunc(text, unicode.IsSpace) != text {
		out += " "
	}
	return out
}

// tidy collapses runs of spaces inside lines and drops blank line runs.
func tidy(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if strings.Trim(line, "# ") == "" {
			blank = len(out) > 0
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
