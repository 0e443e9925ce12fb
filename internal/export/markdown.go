package export

import (
	"strings"

	"gitlab.com/golang-commonmark/markdown"
)

var md = markdown.New(
	markdown.HTML(true),
	markdown.Linkify(true),
	markdown.Typographer(false),
)

// MarkdownToHTML renders markdown source to an HTML fragment.
func MarkdownToHTML(source string) string {
	return md.RenderToString([]byte(source))
}

// SplitSlides partitions a markdown document into slides at top-level
// thematic breaks. A break inside a fenced code block does not split.
func SplitSlides(source string) []string {
	lines := strings.Split(source, "\n")

	var slides []string
	var current []string
	inFence := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
		}
		if !inFence && isThematicBreak(trimmed) {
			slides = append(slides, strings.Join(current, "\n"))
			current = nil
			continue
		}
		current = append(current, line)
	}
	slides = append(slides, strings.Join(current, "\n"))
	return slides
}

func isThematicBreak(line string) bool {
	if len(line) < 3 {
		return false
	}
	var marker rune
	count := 0
	for _, r := range line {
		if r == ' ' || r == '\t' {
			continue
		}
		if marker == 0 {
			if r != '-' && r != '*' && r != '_' {
				return false
			}
			marker = r
		}
		if r != marker {
			return false
		}
		count++
	}
	return count >= 3
}
