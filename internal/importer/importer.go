// Package importer parses bulk attendance sheets exported from
// spreadsheets into mark events.
package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode"

	"rollcall-go/internal/models"
	"rollcall-go/internal/outcome"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Expected column headers. Matching is case-insensitive and ignores
// surrounding whitespace, but all three columns must be present.
const (
	colRoll   = "roll no."
	colName   = "name"
	colStatus = "attendance"
)

// Row is one parsed sheet line.
type Row struct {
	RollNo string
	Name   string
	Status models.AttendanceStatus
}

// ParseCSV reads a bulk attendance sheet. Status cells accept P/A
// (any case); blank lines are skipped; a malformed cell fails the whole
// parse with the offending line number so the sheet can be fixed rather
// than half-imported.
func ParseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, outcome.Errf(outcome.KindValidation, "could not read header row: %v", err)
	}

	rollIdx, nameIdx, statusIdx := -1, -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case colRoll:
			rollIdx = i
		case colName:
			nameIdx = i
		case colStatus:
			statusIdx = i
		}
	}
	if rollIdx < 0 || nameIdx < 0 || statusIdx < 0 {
		return nil, outcome.Errf(outcome.KindValidation,
			"sheet must have %q, %q and %q columns", "Roll No.", "Name", "Attendance")
	}

	var rows []Row
	line := 1
	for {
		cells, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, outcome.Errf(outcome.KindValidation, "line %d: %v", line, err)
		}
		if len(cells) <= rollIdx || len(cells) <= nameIdx || len(cells) <= statusIdx {
			continue
		}

		roll := strings.TrimSpace(cells[rollIdx])
		name := strings.TrimSpace(cells[nameIdx])
		if roll == "" && name == "" {
			continue
		}
		if roll == "" {
			return nil, outcome.Errf(outcome.KindValidation, "line %d: missing roll number", line)
		}
		if name == "" {
			return nil, outcome.Errf(outcome.KindValidation, "line %d: missing name", line)
		}

		status, err := parseStatus(cells[statusIdx])
		if err != nil {
			return nil, outcome.Errf(outcome.KindValidation, "line %d: %v", line, err)
		}
		rows = append(rows, Row{RollNo: roll, Name: name, Status: status})
	}

	if len(rows) == 0 {
		return nil, outcome.Errf(outcome.KindValidation, "sheet contains no attendance rows")
	}
	return rows, nil
}

func parseStatus(cell string) (models.AttendanceStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(cell)) {
	case "P":
		return models.StatusPresent, nil
	case "A":
		return models.StatusAbsent, nil
	default:
		return "", fmt.Errorf("attendance must be P or A, got %q", cell)
	}
}

// RemoveDiacritics strips combining marks so "Müller" and "Muller"
// compare equal.
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeName folds a display name into a comparison key: diacritics
// removed, lower-cased, dashes treated as spaces, runs of whitespace
// collapsed.
func NormalizeName(s string) string {
	s = RemoveDiacritics(s)
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}

// NamesMatch reports whether two display names refer to the same person
// under the normalized comparison key.
func NamesMatch(a, b string) bool {
	return NormalizeName(a) == NormalizeName(b)
}
