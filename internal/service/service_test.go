package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stw-baltyk/baltyk-manager/internal/bankimport"
	"github.com/stw-baltyk/baltyk-manager/internal/config"
	"github.com/stw-baltyk/baltyk-manager/internal/model"
	"github.com/stw-baltyk/baltyk-manager/internal/queue"
	"github.com/stw-baltyk/baltyk-manager/internal/repository"
)

func u64(v uint64) *uint64 { return &v }

func fixedClock(t *testing.T, at time.Time) Clock {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)
	return Clock{Now: func() time.Time { return at }, Loc: loc}
}

func TestClockTodayUsesLocalCalendar(t *testing.T) {
	// 23:30 UTC on 31 Dec is already 1 Jan in Warsaw.
	c := fixedClock(t, time.Date(2024, 12, 31, 23, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), c.Today())

	var zero Clock
	assert.Equal(t, time.UTC, zero.location())
}

func TestSameTemplateIgnoresActiveFlag(t *testing.T) {
	day := 31
	a := model.FeeType{Name: "Składka roczna", Amount: decimal.RequireFromString("120.00"),
		Frequency: model.FrequencyYearly, DueDay: &day, IsActive: true}
	b := a
	b.IsActive = false
	b.Amount = decimal.RequireFromString("120")
	assert.True(t, sameTemplate(a, b))

	other := 30
	b.DueDay = &other
	assert.False(t, sameTemplate(a, b))

	b = a
	b.Amount = decimal.RequireFromString("150")
	assert.False(t, sameTemplate(a, b))
}

func TestFeeTypeInputValidate(t *testing.T) {
	ok := FeeTypeInput{Name: "Wpisowe", Amount: decimal.NewFromInt(50), Frequency: model.FrequencyOneTime}
	require.NoError(t, ok.validate())

	bad := ok
	bad.Amount = decimal.Zero
	assert.ErrorIs(t, bad.validate(), repository.ErrInvalidAmount)

	bad = ok
	bad.Frequency = "weekly"
	assert.ErrorIs(t, bad.validate(), repository.ErrValidation)

	day := 32
	bad = ok
	bad.DueDay = &day
	assert.ErrorIs(t, bad.validate(), repository.ErrValidation)
}

func TestTransactionFromRow(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	auto := model.MatchAuto
	row := ImportRow{
		Date:            time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
		Amount:          decimal.RequireFromString("120.00"),
		Category:        "not-a-category",
		Description:     " Składka 2025 ",
		BankReference:   "REF1",
		ImportSource:    bankimport.FormatMT940,
		MatchedMemberID: u64(7),
		MatchConfidence: &auto,
	}
	tx := transactionFromRow(row, "batch-1", now, 3)
	assert.Equal(t, model.TransactionIncome, tx.Type)
	assert.Equal(t, "fees", tx.Category)
	assert.Equal(t, "Składka 2025", *tx.Description)
	assert.Nil(t, tx.Counterparty)
	assert.Equal(t, "mt940", tx.ImportSource)
	assert.Equal(t, "batch-1", *tx.ImportBatch)
	assert.Equal(t, uint64(3), *tx.CreatedByID)
	require.NotNil(t, tx.MatchConfidence)
	assert.Equal(t, model.MatchAuto, *tx.MatchConfidence)

	row.Amount = decimal.RequireFromString("-45.50")
	row.MatchConfidence = nil
	row.ImportSource = "something"
	tx = transactionFromRow(row, "batch-1", now, 0)
	assert.Equal(t, model.TransactionExpense, tx.Type)
	assert.Equal(t, "other_expense", tx.Category)
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("45.50")))
	assert.Equal(t, model.SourceManual, tx.ImportSource)
	assert.Nil(t, tx.CreatedByID)
	assert.Equal(t, model.MatchManual, *tx.MatchConfidence)
}

func TestRowFromEntry(t *testing.T) {
	row := rowFromEntry(bankimport.Entry{
		Date:   time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
		Amount: decimal.RequireFromString("-10"),
		Source: bankimport.FormatCSV,
	})
	assert.Equal(t, model.TransactionExpense, row.Type)
	assert.Equal(t, "other_expense", row.Category)
	assert.Nil(t, row.MatchedMemberID)
}

func TestMapImportErr(t *testing.T) {
	assert.ErrorIs(t, mapImportErr(bankimport.ErrUnknownFormat), repository.ErrUnknownFormat)
	assert.ErrorIs(t, mapImportErr(bankimport.ErrNoTransactions), repository.ErrNoTransactions)
	assert.ErrorIs(t, mapImportErr(errors.New("line 3: bad amount")), repository.ErrValidation)
}

func TestValidRange(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	assert.NoError(t, validRange(start, start.Add(time.Hour)))
	assert.ErrorIs(t, validRange(start, start), repository.ErrInvalidDateRange)
	assert.ErrorIs(t, validRange(start, start.Add(-time.Hour)), repository.ErrValidation)
	assert.Error(t, validRange(time.Time{}, start))
}

func TestActorCanWrite(t *testing.T) {
	assert.True(t, Actor{Role: model.RoleAdmin}.CanWrite())
	assert.True(t, Actor{Role: model.RoleTreasurer}.CanWrite())
	assert.False(t, Actor{Role: model.RoleBoard}.CanWrite())
}

func TestEventInputValidate(t *testing.T) {
	start := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	in := EventInput{Name: " Rejs do Helu ", StartDate: start}
	require.NoError(t, in.validate())
	assert.Equal(t, "Rejs do Helu", in.Name)
	assert.Equal(t, model.EventOther, in.Type)

	zero := 0
	bad := in
	bad.MaxParticipants = &zero
	assert.ErrorIs(t, bad.validate(), repository.ErrValidation)

	before := start.Add(-time.Hour)
	bad = in
	bad.EndDate = &before
	assert.ErrorIs(t, bad.validate(), repository.ErrInvalidDateRange)
}

func TestMemberInputValidate(t *testing.T) {
	blank := "  "
	in := MemberInput{FirstName: "Anna", LastName: "Nowak", Email: " Anna.Nowak@Example.com ", MemberNumber: &blank}
	require.NoError(t, in.validate())
	assert.Equal(t, "anna.nowak@example.com", in.Email)
	assert.Nil(t, in.MemberNumber)

	in.Email = "not-an-email"
	assert.ErrorIs(t, in.validate(), repository.ErrValidation)
}

func TestMemberPatchKeepsAbsentFields(t *testing.T) {
	str := func(s string) *string { return &s }
	consented := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	today := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	m := &model.Member{
		MemberNumber: str("B-017"),
		FirstName:    "Anna",
		LastName:     "Nowak",
		Email:        "anna@example.com",
		Phone:        str("+48 600 100 200"),
		Address:      str("Gdynia"),
		Notes:        str("skipper"),
		DataConsent:  true,
		ConsentDate:  &consented,
	}

	require.NoError(t, MemberPatch{LastName: str(" Kowalska "), Email: str("Anna.K@Example.com")}.apply(m, today))
	assert.Equal(t, "Kowalska", m.LastName)
	assert.Equal(t, "anna.k@example.com", m.Email)
	assert.Equal(t, "B-017", *m.MemberNumber)
	assert.Equal(t, "+48 600 100 200", *m.Phone)
	assert.Equal(t, "Gdynia", *m.Address)
	assert.Equal(t, "skipper", *m.Notes)
	assert.True(t, m.DataConsent)
	assert.Equal(t, consented, *m.ConsentDate)

	require.NoError(t, MemberPatch{Notes: str(""), DataConsent: new(bool)}.apply(m, today))
	assert.Nil(t, m.Notes)
	assert.False(t, m.DataConsent)
	assert.Nil(t, m.ConsentDate)

	yes := true
	require.NoError(t, MemberPatch{DataConsent: &yes}.apply(m, today))
	assert.Equal(t, today, *m.ConsentDate)

	assert.ErrorIs(t, MemberPatch{FirstName: str(" ")}.apply(m, today), repository.ErrValidation)
}

func TestParticipantBelongsToEvent(t *testing.T) {
	p := &model.EventParticipant{ID: 5, EventID: 7}
	assert.NoError(t, belongsTo(p, 7))
	assert.ErrorIs(t, belongsTo(p, 8), repository.ErrParticipantNotFound)
}

func TestDashboardAlerts(t *testing.T) {
	d := &Dashboard{Alerts: config.Alerts{
		LowBalanceWarning:  decimal.NewFromInt(500),
		HighOverdueWarning: decimal.NewFromInt(1000),
		MaxOverdueMembers:  2,
	}}
	data := &DashboardData{
		Finance:        BalanceSummary{AllTime: model.NewBalance(decimal.NewFromInt(600), decimal.NewFromInt(200))},
		Fees:           model.FeeStats{OverdueAmount: decimal.NewFromInt(1200), OverdueCount: 10},
		OverdueMembers: 3,
	}
	var codes []string
	for _, a := range d.evaluate(data) {
		codes = append(codes, a.Code)
	}
	assert.Equal(t, []string{"low_balance", "high_overdue_amount", "many_overdue_members"}, codes)

	data.Finance.AllTime = model.NewBalance(decimal.NewFromInt(5000), decimal.Zero)
	data.Fees.OverdueAmount = decimal.Zero
	data.OverdueMembers = 0
	assert.Empty(t, d.evaluate(data))
}

func TestDistinctMembers(t *testing.T) {
	fees := []model.FeeView{
		{Fee: model.Fee{ID: 1, MemberID: 1}},
		{Fee: model.Fee{ID: 2, MemberID: 1}},
		{Fee: model.Fee{ID: 3, MemberID: 2}},
	}
	assert.Equal(t, 2, distinctMembers(fees))
}

type recordingPublisher struct {
	events []queue.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.Event) error {
	p.events = append(p.events, ev)
	return p.err
}

func TestPublishFeePaidPayload(t *testing.T) {
	pub := &recordingPublisher{}
	paid := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	publishFeePaid(context.Background(), pub, model.Fee{
		ID: 9, MemberID: 4, MemberName: "Jan Kowalski", FeeTypeName: "Składka roczna",
		Amount: decimal.RequireFromString("120"), PaidDate: &paid,
	}, paid)

	require.Len(t, pub.events, 1)
	assert.Equal(t, queue.TypeFeePaid, pub.events[0].Type)
	var body queue.FeePaid
	require.NoError(t, pub.events[0].Decode(&body))
	assert.Equal(t, "120.00", body.Amount)
	assert.Equal(t, "2025-02-03", body.PaidDate)
}

func TestPublishSwallowsBrokerErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	publish(context.Background(), pub, queue.TypeImportConfirmed, queue.ImportConfirmed{Batch: "b"}, time.Now())
	assert.Len(t, pub.events, 1)

	publish(context.Background(), nil, queue.TypeImportConfirmed, queue.ImportConfirmed{}, time.Now())
}
