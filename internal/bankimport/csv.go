package bankimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Header aliases seen in Polish bank exports, lower-cased.
var (
	dateColumns         = []string{"data operacji", "data księgowania", "data", "data waluty", "date", "booking date"}
	amountColumns       = []string{"kwota", "kwota operacji", "wartość", "amount"}
	descriptionColumns  = []string{"opis operacji", "tytuł", "szczegóły", "opis", "description", "title"}
	counterpartyColumns = []string{"nadawca/odbiorca", "kontrahent", "nazwa kontrahenta", "counterparty"}
	referenceColumns    = []string{"numer referencyjny", "referencja", "nr referencyjny", "reference"}

	dateLayouts = []string{"2006-01-02", "02-01-2006", "02.01.2006", "02/01/2006", "2006.01.02"}
)

// ParseCSV parses a CSV statement export. The delimiter is sniffed from the
// header among ';', ',' and tab. Rows without a parseable date or amount
// are skipped.
func ParseCSV(data []byte) ([]Entry, error) {
	text := decodeText(data)

	var (
		r      *csv.Reader
		header []string
	)
	for _, delim := range []rune{';', ',', '\t'} {
		cr := newCSVReader(text, delim)
		h, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			continue
		}
		if len(h) > 1 {
			r, header = cr, h
			break
		}
	}
	if r == nil {
		return nil, fmt.Errorf("csv: cannot detect delimiter")
	}

	cols := indexColumns(header)
	var out []Entry
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		rawDate := cols.value(row, dateColumns)
		rawAmount := cols.value(row, amountColumns)
		if rawDate == "" || rawAmount == "" {
			continue
		}
		date, ok := parseDate(rawDate)
		if !ok {
			continue
		}
		amount, ok := parseAmount(rawAmount)
		if !ok {
			continue
		}
		out = append(out, Entry{
			Date:          date,
			Amount:        amount,
			Description:   cleanDescription(cols.value(row, descriptionColumns)),
			Counterparty:  cols.value(row, counterpartyColumns),
			BankReference: cols.value(row, referenceColumns),
			Source:        FormatCSV,
		})
	}
	return out, nil
}

func newCSVReader(text string, delim rune) *csv.Reader {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	return r
}

type columnIndex map[string]int

func indexColumns(header []string) columnIndex {
	idx := make(columnIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

// value returns the first non-empty cell among the aliased columns.
func (c columnIndex) value(row []string, aliases []string) string {
	for _, a := range aliases {
		i, ok := c[a]
		if !ok || i >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[i]); v != "" {
			return v
		}
	}
	return ""
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseAmount accepts Polish formatting such as "1 234,56 zł" or "-50,00 PLN".
// When both separators appear the dot is taken as the thousands separator.
func parseAmount(s string) (decimal.Decimal, bool) {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '-', r == '+', r == ',', r == '.':
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if strings.Contains(clean, ",") && strings.Contains(clean, ".") {
		clean = strings.ReplaceAll(clean, ".", "")
	}
	clean = strings.TrimPrefix(strings.Replace(clean, ",", ".", 1), "+")
	if clean == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
