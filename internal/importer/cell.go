package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

// Cell is a spreadsheet value after normalisation: trimmed, full-width
// characters folded to their ASCII forms and runs of whitespace collapsed.
type Cell struct {
	text string
}

// NewCell normalises a raw cell value.
func NewCell(raw string) Cell {
	folded := width.Fold.String(raw)
	return Cell{text: strings.Join(strings.Fields(folded), " ")}
}

// CellAt returns the normalised cell at idx, or a blank cell when the row is short.
func CellAt(row []string, idx int) Cell {
	if idx < 0 || idx >= len(row) {
		return Cell{}
	}
	return NewCell(row[idx])
}

func (c Cell) Text() string { return c.text }

func (c Cell) Blank() bool { return c.text == "" }

// Int parses the cell as an integer. Spreadsheet exports such as "2.0" are accepted
// when the fraction is zero.
func (c Cell) Int() (int, error) {
	if c.Blank() {
		return 0, fmt.Errorf("blank")
	}
	if n, err := strconv.Atoi(c.text); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(c.text, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("%q is not an integer", c.text)
	}
	return int(f), nil
}

// RawValue accepts either a JSON string or a JSON number and keeps its text form,
// so API rows can send credits or PINs the way spreadsheets export them.
type RawValue string

// UnmarshalJSON implements json.Unmarshaler.
func (v *RawValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = RawValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*v = RawValue(n.String())
	return nil
}

// Cell normalises the raw value.
func (v RawValue) Cell() Cell { return NewCell(string(v)) }
