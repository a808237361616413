// Package report turns report rows into CSV tables.
package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stw-baltyk/baltyk-manager/internal/model"
	"github.com/stw-baltyk/baltyk-manager/internal/service"
)

// ContentType is sent with every CSV export.
const ContentType = "text/csv; charset=utf-8"

// bom makes spreadsheet programs read the file as UTF-8.
var bom = []byte{0xEF, 0xBB, 0xBF}

// Table is a CSV export: a file name, a header row and data rows.
type Table struct {
	Filename string
	Header   []string
	Rows     [][]string
}

// Empty reports whether the table has no data rows.
func (t Table) Empty() bool { return len(t.Rows) == 0 }

// WriteCSV writes the BOM, the header and all rows.
func (t Table) WriteCSV(w io.Writer) error {
	if _, err := w.Write(bom); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

func date(t time.Time) string { return t.Format(model.DateLayout) }

func optDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return date(*t)
}

func opt(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

// Fees lists the fees of one year.
func Fees(year int, fees []model.FeeView) Table {
	t := Table{
		Filename: "skladki_" + strconv.Itoa(year) + ".csv",
		Header:   []string{"member_id", "member_name", "fee_type", "period", "amount", "due_date", "status", "paid_date", "days_overdue"},
	}
	for _, f := range fees {
		t.Rows = append(t.Rows, []string{
			strconv.FormatUint(f.MemberID, 10), f.MemberName, f.FeeTypeName, f.Period,
			money(f.Amount), date(f.DueDate), string(f.DisplayStatus), optDate(f.PaidDate),
			strconv.Itoa(f.DaysOverdue),
		})
	}
	return t
}

// Overdue lists overdue fees of active members with their warning level.
func Overdue(rows []service.OverdueRow) Table {
	t := Table{
		Filename: "zaleglosci.csv",
		Header:   []string{"member_id", "member_name", "fee_type", "amount", "due_date", "days_overdue", "warning_level"},
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{
			strconv.FormatUint(r.MemberID, 10), r.MemberName, r.FeeTypeName, money(r.Amount),
			date(r.DueDate), strconv.Itoa(r.DaysOverdue), r.Level,
		})
	}
	return t
}

// Members lists the member register. status names the file ("all" when empty).
func Members(status string, members []model.Member) Table {
	if status == "" {
		status = "all"
	}
	t := Table{
		Filename: "czlonkowie_" + status + ".csv",
		Header:   []string{"member_number", "first_name", "last_name", "email", "phone", "join_date", "status", "total_debt"},
	}
	for _, m := range members {
		t.Rows = append(t.Rows, []string{
			opt(m.MemberNumber), m.FirstName, m.LastName, m.Email, opt(m.Phone),
			date(m.JoinDate), string(m.Status), money(m.TotalDebt),
		})
	}
	return t
}

// Finance is the simplified bookkeeping record of one year. Expenses are
// written as negative amounts.
func Finance(year int, txs []model.Transaction) Table {
	t := Table{
		Filename: "ewidencja_" + strconv.Itoa(year) + ".csv",
		Header:   []string{"date", "type", "category", "description", "counterparty", "amount", "bank_reference", "member"},
	}
	for _, tx := range txs {
		amount := tx.Amount
		if tx.Type == model.TransactionExpense {
			amount = amount.Neg()
		}
		t.Rows = append(t.Rows, []string{
			date(tx.Date), string(tx.Type), tx.Category, opt(tx.Description), opt(tx.Counterparty),
			money(amount), opt(tx.BankReference), tx.MatchedMemberName,
		})
	}
	return t
}

// Events lists the events of one year with their participant counts.
func Events(year int, events []model.EventView) Table {
	t := Table{
		Filename: "wydarzenia_" + strconv.Itoa(year) + ".csv",
		Header:   []string{"name", "event_type", "start_date", "end_date", "location", "status", "max_participants", "registered", "waitlist", "cost"},
	}
	for _, e := range events {
		limit := ""
		if e.MaxParticipants != nil {
			limit = strconv.Itoa(*e.MaxParticipants)
		}
		cost := ""
		if e.Cost != nil {
			cost = money(*e.Cost)
		}
		t.Rows = append(t.Rows, []string{
			e.Name, string(e.Type), e.StartDate.Format(time.RFC3339), optTime(e.EndDate), opt(e.Location),
			string(e.Status), limit, strconv.Itoa(e.ParticipantCount), strconv.Itoa(e.WaitlistCount), cost,
		})
	}
	return t
}

func optTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
