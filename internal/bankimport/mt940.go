package bankimport

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	tagLine = regexp.MustCompile(`^:(\d{2}[A-Z]?):(.*)$`)
	// :61: value date, optional entry date, debit/credit mark, optional
	// funds code, amount, transaction type, customer ref, //bank ref.
	statementLine = regexp.MustCompile(`^(\d{6})(\d{4})?(RC|RD|C|D)([A-Z])?(\d+,\d*)([NFS][A-Z0-9]{3})?(.*?)(?://(.*))?$`)

	counterpartyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)/ORD/([^/]+)`),
		regexp.MustCompile(`(?i)/BNF/([^/]+)`),
		regexp.MustCompile(`(?i)OD:\s*(\S+)`),
		regexp.MustCompile(`(?i)NA RZECZ:\s*(\S+)`),
	}
)

type mt940Field struct {
	tag   string
	lines []string
}

// ParseMT940 parses a SWIFT MT940 statement. Only :61: statement lines and
// the :86: details that follow them are used; balances are ignored.
func ParseMT940(data []byte) ([]Entry, error) {
	fields := splitFields(decodeText(data))

	var (
		out     []Entry
		current *Entry
	)
	flush := func() {
		if current != nil {
			out = append(out, *current)
			current = nil
		}
	}
	for _, f := range fields {
		switch f.tag {
		case "61":
			flush()
			e, err := parseStatementLine(f.lines)
			if err != nil {
				return nil, err
			}
			current = &e
		case "86":
			if current == nil {
				continue
			}
			details := strings.Join(f.lines, " ")
			current.Description = cleanDescription(details)
			current.Counterparty = extractCounterparty(details)
		case "62F", "62M", "20":
			flush()
		}
	}
	flush()
	return out, nil
}

func splitFields(text string) []mt940Field {
	var fields []mt940Field
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "-" || strings.HasPrefix(line, "{") {
			continue
		}
		if m := tagLine.FindStringSubmatch(line); m != nil {
			fields = append(fields, mt940Field{tag: m[1], lines: []string{m[2]}})
			continue
		}
		if n := len(fields); n > 0 {
			fields[n-1].lines = append(fields[n-1].lines, line)
		}
	}
	return fields
}

func parseStatementLine(lines []string) (Entry, error) {
	if len(lines) == 0 {
		return Entry{}, fmt.Errorf("mt940: empty :61: field")
	}
	m := statementLine.FindStringSubmatch(strings.TrimSpace(lines[0]))
	if m == nil {
		return Entry{}, fmt.Errorf("mt940: malformed :61: line %q", lines[0])
	}
	date, err := time.ParseInLocation("060102", m[1], time.UTC)
	if err != nil {
		return Entry{}, fmt.Errorf("mt940: value date %q: %w", m[1], err)
	}
	amount, err := decimal.NewFromString(strings.Replace(m[5], ",", ".", 1))
	if err != nil {
		return Entry{}, fmt.Errorf("mt940: amount %q: %w", m[5], err)
	}
	if m[3] == "D" || m[3] == "RC" {
		amount = amount.Neg()
	}

	ref := strings.TrimSpace(m[8])
	if ref == "" {
		ref = strings.TrimSpace(m[7])
	}
	if strings.EqualFold(ref, "NONREF") {
		ref = ""
	}

	e := Entry{Date: date, Amount: amount, BankReference: ref, Source: FormatMT940}
	if len(lines) > 1 {
		e.Description = cleanDescription(strings.Join(lines[1:], " "))
	}
	return e, nil
}

func extractCounterparty(details string) string {
	for _, re := range counterpartyPatterns {
		if m := re.FindStringSubmatch(details); m != nil {
			if s := strings.TrimSpace(m[1]); s != "" {
				return s
			}
		}
	}
	for _, part := range strings.Split(details, "/") {
		part = strings.TrimSpace(part)
		if len(part) > 5 && !isUpper(part) {
			return part
		}
	}
	return ""
}

// isUpper reports whether s has cased letters and all of them are upper case.
func isUpper(s string) bool {
	return strings.ToUpper(s) == s && strings.ToLower(s) != s
}
