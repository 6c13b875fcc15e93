package textclean

import (
	"strings"
	"testing"
)

func TestCleanStripsControlCharacters(t *testing.T) {
	got := New().Clean("a\x00b\x07c\td\r\ne")
	if got != "abc d\ne" {
		t.Fatalf("Clean() = %q", got)
	}
}

func TestCleanComposesUnicode(t *testing.T) {
	// e + combining acute becomes the precomposed rune.
	got := New().Clean("cafe\u0301")
	if got != "caf\u00e9" {
		t.Fatalf("Clean() = %q", got)
	}
}

func TestCleanRemovesOCRArtifacts(t *testing.T) {
	in := "The reg\u00adulation is ef\ufb01cient and com-\nplete.\n- - -\n—\n=== Page 2 ===\nNext page."
	want := "The regulation is efficient and complete.\n\n\n=== Page 2 ===\nNext page."
	if got := New().Clean(in); got != want {
		t.Fatalf("Clean() = %q, want %q", got, want)
	}
}

func TestCleanWhitespaceRules(t *testing.T) {
	in := "   three spaces\n      deep   indent   kept   \n\n\n\n\nafter    gap   \n"
	want := "three spaces\n      deep indent kept\n\n\nafter gap"
	if got := New().Clean(in); got != want {
		t.Fatalf("Clean() = %q, want %q", got, want)
	}
}

func TestCleanPunctuation(t *testing.T) {
	in := "Hello , world !! \u201cQuoted\u201d \u00abangled\u00bb it\u2019s.. ok.... done..."
	want := `Hello, world! "Quoted" "angled" it's. ok... done...`
	if got := New().Clean(in); got != want {
		t.Fatalf("Clean() = %q, want %q", got, want)
	}
}

func TestCleanIsIdempotent(t *testing.T) {
	c := New()
	samples := []string{
		"",
		"plain text",
		"   a  ,, b ;; c\n\n\n\n\n   d\u00a0e\r\nf\u201cg\u201d....\n----\nexam-  \nple",
		"=== Page 1 ===\n    code block\n\tstays\n- item one\n- item two",
	}
	for _, s := range samples {
		once := c.Clean(s)
		if twice := c.Clean(once); twice != once {
			t.Fatalf("Clean not idempotent for %q:\nonce  %q\ntwice %q", s, once, twice)
		}
	}
}

func TestCleanKeepsListItems(t *testing.T) {
	got := New().Clean("- item one\n- item two")
	if got != "- item one\n- item two" {
		t.Fatalf("Clean() = %q", got)
	}
}

func TestDeduplicateDropsRepeatedPages(t *testing.T) {
	header := strings.Repeat("Central bank annual report ", 3)
	in := "=== Page 1 ===\n" + header + "intro\n" +
		"=== Page 2 ===\n" + "Unique body\n" +
		"=== Page 3 ===\n" + strings.ToUpper(header) + "intro"
	got := New().Deduplicate(in, 40)
	if strings.Contains(got, "=== Page 3 ===") {
		t.Fatalf("expected page 3 dropped, got %q", got)
	}
	if !strings.Contains(got, "=== Page 2 ===\nUnique body") || !strings.HasPrefix(got, "=== Page 1 ===") {
		t.Fatalf("unexpected result %q", got)
	}
}

func TestDeduplicateKeepsBlankPagesAndUnmarkedText(t *testing.T) {
	c := New()
	in := "=== Page 1 ===\n\n=== Page 2 ===\n\n=== Page 3 ===\nbody"
	if got := c.Deduplicate(in, 200); got != in {
		t.Fatalf("blank pages must survive, got %q", got)
	}
	if got := c.Deduplicate("no markers at all", 200); got != "no markers at all" {
		t.Fatalf("unexpected %q", got)
	}
}
