// Package bankimport turns bank statement exports into candidate
// transactions and suggests which member each incoming payment belongs to.
// Nothing in this package touches the database; callers decide what to
// persist.
package bankimport

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
)

// Supported formats.
const (
	FormatAuto  = "auto"
	FormatMT940 = "mt940"
	FormatCSV   = "csv"
)

var (
	// ErrUnknownFormat is returned when the format cannot be determined.
	ErrUnknownFormat = errors.New("bankimport: unknown file format")
	// ErrNoTransactions is returned when a file parses but yields nothing.
	ErrNoTransactions = errors.New("bankimport: no transactions found")
)

// Entry is one parsed statement line. Amount is signed: debits are negative.
type Entry struct {
	Date          time.Time       `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	Counterparty  string          `json:"counterparty"`
	BankReference string          `json:"bank_reference"`
	Source        string          `json:"import_source"`
}

// IsIncome reports whether money came in.
func (e Entry) IsIncome() bool { return e.Amount.IsPositive() }

// DetectFormat maps a file name to a format. An explicit format other than
// auto wins over the extension.
func DetectFormat(filename, format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatMT940:
		return FormatMT940, nil
	case FormatCSV:
		return FormatCSV, nil
	case "", FormatAuto:
	default:
		return "", ErrUnknownFormat
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".sta", ".mt940", ".940":
		return FormatMT940, nil
	case ".csv":
		return FormatCSV, nil
	}
	return "", ErrUnknownFormat
}

// Parse decodes data and dispatches to the parser for format. An empty
// result is reported as ErrNoTransactions.
func Parse(filename, format string, data []byte) ([]Entry, string, error) {
	f, err := DetectFormat(filename, format)
	if err != nil {
		return nil, "", err
	}
	var entries []Entry
	switch f {
	case FormatMT940:
		entries, err = ParseMT940(data)
	default:
		entries, err = ParseCSV(data)
	}
	if err != nil {
		return nil, f, err
	}
	if len(entries) == 0 {
		return nil, f, ErrNoTransactions
	}
	return entries, f, nil
}

// decodeText returns data as UTF-8. Polish banks commonly export
// Windows-1250; ISO-8859-2 is tried when Windows-1250 leaves undefined bytes.
func decodeText(data []byte) string {
	data = []byte(strings.TrimPrefix(string(data), "\ufeff"))
	if utf8.Valid(data) {
		return string(data)
	}
	if out, err := charmap.Windows1250.NewDecoder().Bytes(data); err == nil && !strings.ContainsRune(string(out), utf8.RuneError) {
		return string(out)
	}
	if out, err := charmap.ISO8859_2.NewDecoder().Bytes(data); err == nil {
		return string(out)
	}
	return strings.ToValidUTF8(string(data), "?")
}

// cleanDescription collapses whitespace and drops MT940 field markers.
func cleanDescription(s string) string {
	for _, marker := range []string{"/ROC/", "/RFB/", "/ID/", "/BNF/", "/ORD/"} {
		s = strings.ReplaceAll(s, marker, " ")
	}
	return strings.Join(strings.Fields(s), " ")
}
