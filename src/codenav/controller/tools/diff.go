package tools

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// _diffContext is the number of unchanged lines shown around each change.
const _diffContext = 2

// lineDiff renders the line level difference between before and after with "-", "+" and " " prefixes.
// Long unchanged stretches are elided with "...". Identical inputs give an empty diff.
func lineDiff(before, after []byte) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(string(before), string(after))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)
	if len(diffs) == 0 || (len(diffs) == 1 && diffs[0].Type == diffmatchpatch.DiffEqual) {
		return ""
	}

	var out strings.Builder
	for i, d := range diffs {
		text := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			writeLines(&out, "-", text)
		case diffmatchpatch.DiffInsert:
			writeLines(&out, "+", text)
		case diffmatchpatch.DiffEqual:
			afterChange, beforeChange := i > 0, i < len(diffs)-1
			keep := 0
			if afterChange {
				keep += _diffContext
			}
			if beforeChange {
				keep += _diffContext
			}
			if len(text) <= keep {
				writeLines(&out, " ", text)
				continue
			}
			if afterChange {
				writeLines(&out, " ", text[:_diffContext])
			}
			out.WriteString("...\n")
			if beforeChange {
				writeLines(&out, " ", text[len(text)-_diffContext:])
			}
		}
	}
	return out.String()
}

func splitLines(text string) []string {
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func writeLines(out *strings.Builder, prefix string, lines []string) {
	for _, line := range lines {
		out.WriteString(prefix)
		out.WriteString(line)
		if !strings.HasSuffix(line, "\n") {
			out.WriteString("\n")
		}
	}
}
