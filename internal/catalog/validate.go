package catalog

// validate.go partitions decoded rows into accepted CanonicalRows and
// rejected RowErrors. This stage is pure and deterministic: the dry-run path
// stops right after it, so anything with side effects belongs later in the
// pipeline.

import (
	"regexp"
	"strconv"
	"strings"
)

var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// NormalizeRows validates rows in file order. sourceRowNumber is index+2
// (the header occupies line 1). Fully blank rows are skipped entirely.
//
// Policy notes, easy to misread:
//   - duplicate codes within the file: the FIRST occurrence wins, later ones
//     are rejected (not merged);
//   - rate never causes a rejection — unparsable values normalize to nil.
func NormalizeRows(rows [][]string, hm HeaderMap) (accepted []CanonicalRow, rejected []RowError) {
	seen := make(map[string]struct{}, len(rows))

	for i, row := range rows {
		srcRow := i + 2

		if isBlankRow(row) {
			continue
		}

		code := strings.TrimSpace(cellAt(row, hm.CodeCol))
		if code == "" {
			rejected = append(rejected, RowError{
				SourceRowNumber: srcRow,
				Message:         "BookCode is required",
			})
			continue
		}

		name := strings.TrimSpace(cellAt(row, hm.NameCol))
		if name == "" {
			rejected = append(rejected, RowError{
				SourceRowNumber: srcRow,
				Code:            code,
				Message:         "BookName is required",
			})
			continue
		}

		if _, dup := seen[code]; dup {
			rejected = append(rejected, RowError{
				SourceRowNumber: srcRow,
				Code:            code,
				Message:         "Duplicate BookCode within file",
			})
			continue
		}
		seen[code] = struct{}{}

		accepted = append(accepted, CanonicalRow{
			Code:            code,
			Name:            name,
			Rate:            parseRate(cellAt(row, hm.RateCol)),
			SourceRowNumber: srcRow,
		})
	}

	return accepted, rejected
}

// cellAt returns the cell at col, or "" when the row is short or the column
// is unbound. Decoded rows are ragged: trailing empty cells are often absent.
func cellAt(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// parseRate coerces a cell to a float64 pointer. Currency symbols, thousands
// separators, and accounting-style negatives "(12.50)" are tolerated since
// rate columns frequently come out of finance spreadsheets. Anything that
// still does not parse becomes nil rather than an error.
func parseRate(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "")
	s = strings.ReplaceAll(s, "£", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if negative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
