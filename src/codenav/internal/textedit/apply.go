package textedit

import (
	"fmt"
	"sort"

	"github.com/uber/codenav/src/codenav/entity"
)

type span struct {
	start, end int
	text       string
	index      int
}

// Apply returns data with every edit applied. Edits are interpreted against the original content
// and must not overlap. Edits inserting at the same position keep their given order.
func Apply(data []byte, edits []entity.TextEdit) ([]byte, error) {
	if len(edits) == 0 {
		return data, nil
	}

	c := New(data)
	spans := make([]span, 0, len(edits))
	for i, e := range edits {
		start, err := c.Offset(e.Range.Start)
		if err != nil {
			return nil, fmt.Errorf("edit %d start: %w", i, err)
		}
		end, err := c.Offset(e.Range.End)
		if err != nil {
			return nil, fmt.Errorf("edit %d end: %w", i, err)
		}
		if end < start {
			return nil, fmt.Errorf("edit %d: end precedes start", i)
		}
		spans = append(spans, span{start: start, end: end, text: e.NewText, index: i})
	}

	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].index < spans[j].index
	})

	out := make([]byte, 0, len(data))
	last := 0
	for _, s := range spans {
		if s.start < last {
			return nil, fmt.Errorf("edit %d overlaps a previous edit", s.index)
		}
		out = append(out, data[last:s.start]...)
		out = append(out, s.text...)
		last = s.end
	}
	out = append(out, data[last:]...)
	return out, nil
}

// InsertLine returns an edit inserting text at the start of line.
func InsertLine(line int, text string) entity.TextEdit {
	pos := entity.Position{Line: line}
	return entity.TextEdit{Range: entity.Range{Start: pos, End: pos}, NewText: text}
}
