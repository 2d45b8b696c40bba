// Package parser reads vocabulary rows from tab-separated text.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/conorfennell/lexicard/internal/domain"
)

const (
	commentPrefix = "#"
	separator     = "\t"
	bom           = "\ufeff"

	// a notes cell may be long; the default 64KiB token limit is too tight
	maxLineBytes = 1 << 20
)

// Column order of a row.
const (
	colTerm = iota
	colTranslation
	colPhonetic
	colTags
	colNotes
)

// Parse reads term<TAB>translation<TAB>phonetic<TAB>tags<TAB>notes lines.
// Trailing columns are optional, extra columns are folded into notes.
// Blank lines and lines starting with # are ignored. Rows are returned
// as written; validation is left to the importer.
func Parse(r io.Reader) ([]domain.RawRow, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var rows []domain.RawRow
	lineNo := 0
	for scanner.Scan() {
		line := scanner.Text()
		lineNo++
		if lineNo == 1 {
			line = strings.TrimPrefix(line, bom)
		}
		line = strings.TrimRight(line, "\r")

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, commentPrefix) {
			continue
		}

		rows = append(rows, parseLine(line))
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read line %d: %w", lineNo+1, err)
	}

	return rows, nil
}

func parseLine(line string) domain.RawRow {
	cells := strings.SplitN(line, separator, colNotes+1)
	get := func(i int) string {
		if i >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[i])
	}
	notes := get(colNotes)
	if notes != "" {
		notes = strings.Join(strings.Fields(strings.ReplaceAll(notes, separator, " ")), " ")
	}
	return domain.RawRow{
		Term:        get(colTerm),
		Translation: get(colTranslation),
		Phonetic:    get(colPhonetic),
		TagsRaw:     get(colTags),
		Notes:       notes,
	}
}
