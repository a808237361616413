package report

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stw-baltyk/baltyk-manager/internal/model"
)

func TestWriteCSVStartsWithBOM(t *testing.T) {
	tbl := Table{Header: []string{"a", "b"}, Rows: [][]string{{"zażółć", "1,5"}}}
	var buf bytes.Buffer
	require.NoError(t, tbl.WriteCSV(&buf))

	out := buf.Bytes()
	require.True(t, bytes.HasPrefix(out, bom))
	recs, err := csv.NewReader(bytes.NewReader(out[len(bom):])).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"zażółć", "1,5"}}, recs)
}

func TestFinanceNegatesExpenses(t *testing.T) {
	desc := "Czynsz"
	tbl := Finance(2025, []model.Transaction{
		{Date: time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC), Amount: decimal.NewFromInt(300), Type: model.TransactionExpense, Category: "rent", Description: &desc},
		{Date: time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC), Amount: decimal.NewFromInt(120), Type: model.TransactionIncome, Category: "fees"},
	})
	assert.Equal(t, "ewidencja_2025.csv", tbl.Filename)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "-300.00", tbl.Rows[0][5])
	assert.Equal(t, "Czynsz", tbl.Rows[0][3])
	assert.Equal(t, "120.00", tbl.Rows[1][5])
}

func TestMembersEmpty(t *testing.T) {
	tbl := Members("", nil)
	assert.True(t, tbl.Empty())
	assert.Equal(t, "czlonkowie_all.csv", tbl.Filename)
}

func TestFeesRow(t *testing.T) {
	today := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	f := model.Fee{MemberID: 3, MemberName: "Jan Kowalski", FeeTypeName: "Składka roczna", Period: "2025",
		Amount: decimal.NewFromInt(120), DueDate: time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), Status: model.FeePending}
	tbl := Fees(2025, []model.FeeView{f.View(today)})
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, []string{"3", "Jan Kowalski", "Składka roczna", "2025", "120.00", "2025-01-31", "overdue", "", "43"}, tbl.Rows[0])
}
