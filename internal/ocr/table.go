package ocr

import (
	"regexp"
	"sort"
	"strings"
)

// Columns in -layout text are separated by runs of three or more spaces.
var reGutter = regexp.MustCompile(` {3,}`)

type segment struct {
	start int
	text  string
}

// LayoutTable builds a best-effort grid from layout-preserving text. Each
// block of consecutive non-blank lines with at least two columns becomes one
// row; the lines of a column are joined with "\n" into a single cell.
func LayoutTable(text string) [][]string {
	var rows [][]string
	for _, page := range strings.Split(text, "\f") {
		var block [][]segment
		flush := func() {
			if row := blockToRow(block); row != nil {
				rows = append(rows, row)
			}
			block = nil
		}
		for _, line := range strings.Split(page, "\n") {
			if strings.TrimSpace(line) == "" {
				flush()
				continue
			}
			block = append(block, splitSegments(line))
		}
		flush()
	}
	return rows
}

func splitSegments(line string) []segment {
	var segs []segment
	pos := 0
	for _, loc := range reGutter.FindAllStringIndex(line, -1) {
		if t := strings.TrimSpace(line[pos:loc[0]]); t != "" {
			segs = append(segs, segment{start: pos + leading(line[pos:loc[0]]), text: t})
		}
		pos = loc[1]
	}
	if t := strings.TrimSpace(line[pos:]); t != "" {
		segs = append(segs, segment{start: pos + leading(line[pos:]), text: t})
	}
	return segs
}

func leading(s string) int {
	return len(s) - len(strings.TrimLeft(s, " "))
}

func blockToRow(block [][]segment) []string {
	// Column starts come from the widest line of the block.
	var widest []segment
	for _, segs := range block {
		if len(segs) > len(widest) {
			widest = segs
		}
	}
	if len(widest) < 2 {
		return nil
	}
	starts := make([]int, len(widest))
	for i, s := range widest {
		starts[i] = s.start
	}
	sort.Ints(starts)

	cells := make([][]string, len(starts))
	for _, segs := range block {
		for _, s := range segs {
			col := 0
			for i, st := range starts {
				if s.start+2 >= st {
					col = i
				}
			}
			cells[col] = append(cells[col], s.text)
		}
	}
	row := make([]string, len(cells))
	for i, c := range cells {
		row[i] = strings.Join(c, "\n")
	}
	return row
}
