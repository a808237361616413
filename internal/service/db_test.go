package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stw-baltyk/baltyk-manager/internal/bankimport"
	"github.com/stw-baltyk/baltyk-manager/internal/database"
	"github.com/stw-baltyk/baltyk-manager/internal/model"
	"github.com/stw-baltyk/baltyk-manager/internal/repository"
)

// These tests need a disposable MySQL database, e.g.
// TEST_MYSQL_DSN="root:root@tcp(localhost:3306)/baltyk_test?parseTime=true&loc=UTC".

var (
	testDBOnce sync.Once
	testDB     *sql.DB
	testDBErr  error
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set")
	}
	testDBOnce.Do(func() {
		testDB, testDBErr = database.OpenDSN(dsn)
		if testDBErr == nil {
			testDBErr = database.Migrate(context.Background(), testDB)
		}
	})
	require.NoError(t, testDBErr)
	return testDB
}

type fixture struct {
	db    *sql.DB
	clock Clock
	pub   *recordingPublisher

	members      *Members
	ledger       *Ledger
	finance      *Reconciliation
	reservations *Reservations
	registration *Registration
}

func newFixture(t *testing.T) *fixture {
	db := openTestDB(t)
	clock := fixedClock(t, time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC))
	pub := &recordingPublisher{}
	return &fixture{
		db:           db,
		clock:        clock,
		pub:          pub,
		members:      NewMembers(db, clock),
		ledger:       NewLedger(db, pub, clock),
		finance:      NewReconciliation(db, bankimport.DefaultMatchConfig(), pub, clock),
		reservations: NewReservations(db, pub, clock),
		registration: NewRegistration(db, pub, clock),
	}
}

func (f *fixture) member(t *testing.T, last string) *model.Member {
	t.Helper()
	m, err := f.members.Create(context.Background(), MemberInput{
		FirstName: "Test",
		LastName:  last,
		Email:     uuid.NewString() + "@example.com",
	})
	require.NoError(t, err)
	return m
}

func TestReservationOverlapIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "Żeglarz")
	kayak, err := f.reservations.CreateEquipment(ctx, EquipmentInput{Name: "Kajak " + uuid.NewString()[:8], Type: model.EquipmentKayak})
	require.NoError(t, err)

	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	first, err := f.reservations.Create(ctx, ReservationInput{
		EquipmentID: kayak.ID, MemberID: m.ID, Start: start, End: start.Add(3 * time.Hour),
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationPending, first.Status)

	_, err = f.reservations.Create(ctx, ReservationInput{
		EquipmentID: kayak.ID, MemberID: m.ID, Start: start.Add(time.Hour), End: start.Add(5 * time.Hour),
	}, 0)
	require.ErrorIs(t, err, repository.ErrReservationOverlap)
	require.ErrorIs(t, err, repository.ErrConflict)
	var overlap *repository.OverlapError
	require.True(t, errors.As(err, &overlap))
	require.Len(t, overlap.Conflicts, 1)
	assert.Equal(t, first.ID, overlap.Conflicts[0].ID)

	// Back to back is fine.
	_, err = f.reservations.Create(ctx, ReservationInput{
		EquipmentID: kayak.ID, MemberID: m.ID, Start: start.Add(3 * time.Hour), End: start.Add(4 * time.Hour),
	}, 0)
	require.NoError(t, err)

	// Cancelling frees the slot immediately.
	_, err = f.reservations.Cancel(ctx, first.ID)
	require.NoError(t, err)
	_, err = f.reservations.Create(ctx, ReservationInput{
		EquipmentID: kayak.ID, MemberID: m.ID, Start: start, End: start.Add(2 * time.Hour),
	}, 0)
	require.NoError(t, err)
}

func TestConcurrentReservationsNeverOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "Wioślarz")
	sup, err := f.reservations.CreateEquipment(ctx, EquipmentInput{Name: "SUP " + uuid.NewString()[:8], Type: model.EquipmentSUP})
	require.NoError(t, err)

	start := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	const n = 8
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.reservations.Create(ctx, ReservationInput{
				EquipmentID: sup.ID, MemberID: m.ID, Start: start, End: start.Add(time.Hour),
			}, 0)
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
}

func TestGenerateTwiceCreatesNoDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.member(t, "Pierwszy")
	f.member(t, "Drugi")

	day := 10
	ft, err := f.ledger.CreateType(ctx, FeeTypeInput{
		Name: "Składka " + uuid.NewString()[:8], Amount: decimal.NewFromInt(15),
		Frequency: model.FrequencyMonthly, DueDay: &day,
	})
	require.NoError(t, err)

	first, err := f.ledger.Generate(ctx, ft.ID, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, first.Created, 2)
	assert.Equal(t, "2025-03", first.Period)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), first.DueDate)

	second, err := f.ledger.Generate(ctx, ft.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, second.Created)
	assert.Equal(t, first.Created+first.Skipped, second.Skipped)

	// Once fees exist only is_active may change.
	_, err = f.ledger.UpdateType(ctx, ft.ID, FeeTypeInput{
		Name: ft.Name, Amount: decimal.NewFromInt(20), Frequency: ft.Frequency, DueDay: ft.DueDay,
	})
	require.ErrorIs(t, err, repository.ErrFeeTypeInUse)

	_, err = f.ledger.SetTypeActive(ctx, ft.ID, false)
	require.NoError(t, err)
	_, err = f.ledger.Generate(ctx, ft.ID, nil)
	require.ErrorIs(t, err, repository.ErrFeeTypeInactive)
}

func TestMarkPaidAndOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "Dłużnik")
	ft, err := f.ledger.CreateType(ctx, FeeTypeInput{
		Name: "Wpisowe " + uuid.NewString()[:8], Amount: decimal.NewFromInt(50), Frequency: model.FrequencyOneTime,
	})
	require.NoError(t, err)

	due := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	fee, err := f.ledger.CreateFee(ctx, FeeInput{MemberID: m.ID, FeeTypeID: ft.ID, DueDate: &due})
	require.NoError(t, err)
	assert.Equal(t, model.FeeOverdue, fee.DisplayStatus)
	assert.Equal(t, model.FeePending, fee.Status)
	assert.Equal(t, 14, fee.DaysOverdue)

	paid, err := f.ledger.MarkPaid(ctx, fee.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.FeePaid, paid.DisplayStatus)
	assert.Equal(t, f.clock.Today(), *paid.PaidDate)

	_, err = f.ledger.MarkPaid(ctx, fee.ID, nil, nil)
	require.ErrorIs(t, err, repository.ErrFeeNotPayable)
	_, err = f.ledger.Cancel(ctx, fee.ID)
	require.ErrorIs(t, err, repository.ErrFeeNotPayable)
}

func TestWaitlistPromotionEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.member(t, "Alfa"), f.member(t, "Beta"), f.member(t, "Gamma")

	max := 2
	ev, err := f.registration.CreateEvent(ctx, EventInput{
		Name: "Spływ " + uuid.NewString()[:8], Type: model.EventKayakTrip,
		StartDate: time.Date(2025, 8, 1, 8, 0, 0, 0, time.UTC), MaxParticipants: &max,
	}, 0)
	require.NoError(t, err)

	_, err = f.registration.Register(ctx, ev.ID, a.ID, nil)
	require.ErrorIs(t, err, repository.ErrRegistrationClosed)

	_, err = f.registration.OpenRegistration(ctx, ev.ID)
	require.NoError(t, err)

	pa, err := f.registration.Register(ctx, ev.ID, a.ID, nil)
	require.NoError(t, err)
	pb, err := f.registration.Register(ctx, ev.ID, b.ID, nil)
	require.NoError(t, err)
	_, err = f.registration.Confirm(ctx, ev.ID, pa.ID)
	require.NoError(t, err)
	_, err = f.registration.Confirm(ctx, ev.ID, pb.ID)
	require.NoError(t, err)

	pc, err := f.registration.Register(ctx, ev.ID, c.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.ParticipantWaitlist, pc.Status)

	view, err := f.registration.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EventFull, view.Status)

	_, err = f.registration.Register(ctx, ev.ID, a.ID, nil)
	require.ErrorIs(t, err, repository.ErrAlreadyRegistered)

	_, err = f.registration.Cancel(ctx, ev.ID, pa.ID, Actor{Role: model.RoleAdmin})
	require.NoError(t, err)

	promoted, err := f.registration.parts.GetByID(ctx, pc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ParticipantRegistered, promoted.Status)

	view, err = f.registration.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EventFull, view.Status)
	assert.Equal(t, 2, view.ParticipantCount)

	_, err = f.registration.Cancel(ctx, ev.ID+1, pb.ID, Actor{Role: model.RoleAdmin})
	require.ErrorIs(t, err, repository.ErrParticipantNotFound)

	// Someone else's registration is off limits for a read-only account.
	_, err = f.registration.Cancel(ctx, ev.ID, pb.ID, Actor{Role: model.RoleBoard, MemberID: &c.ID})
	require.ErrorIs(t, err, repository.ErrNotOwnRegistration)

	low := 1
	_, err = f.registration.UpdateEvent(ctx, ev.ID, EventInput{
		Name: view.Name, Type: view.Type, StartDate: view.StartDate, MaxParticipants: &low,
	})
	require.ErrorIs(t, err, repository.ErrCapacityBelowActive)
}

func TestMatchThenUnmatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "Płatnik")
	other := f.member(t, "Inny")
	ft, err := f.ledger.CreateType(ctx, FeeTypeInput{
		Name: "Roczna " + uuid.NewString()[:8], Amount: decimal.NewFromInt(120), Frequency: model.FrequencyYearly,
	})
	require.NoError(t, err)
	fee, err := f.ledger.CreateFee(ctx, FeeInput{MemberID: m.ID, FeeTypeID: ft.ID})
	require.NoError(t, err)

	desc := "Składka roczna"
	tx, err := f.finance.Create(ctx, TransactionInput{
		Date: time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC), Amount: decimal.NewFromInt(120),
		Type: model.TransactionIncome, Description: &desc,
	}, 0)
	require.NoError(t, err)
	assert.Nil(t, tx.MatchedMemberID)

	_, err = f.finance.Match(ctx, tx.ID, other.ID, &fee.ID)
	require.ErrorIs(t, err, repository.ErrFeeMemberMismatch)

	matched, err := f.finance.Match(ctx, tx.ID, m.ID, &fee.ID)
	require.NoError(t, err)
	require.NotNil(t, matched.MatchedMemberID)
	assert.Equal(t, m.ID, *matched.MatchedMemberID)
	assert.Equal(t, model.MatchManual, *matched.MatchConfidence)

	settled, err := f.ledger.Get(ctx, fee.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FeePaid, settled.Status)
	assert.Equal(t, tx.ID, *settled.TransactionID)

	_, err = f.finance.Match(ctx, tx.ID, other.ID, nil)
	require.ErrorIs(t, err, repository.ErrAlreadyMatched)

	unmatched, err := f.finance.Unmatch(ctx, tx.ID)
	require.NoError(t, err)
	assert.Nil(t, unmatched.MatchedMemberID)
	assert.Nil(t, unmatched.MatchConfidence)

	reopened, err := f.ledger.Get(ctx, fee.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FeePending, reopened.Status)
	assert.Nil(t, reopened.TransactionID)
	assert.Nil(t, reopened.PaidDate)

	again, err := f.finance.Unmatch(ctx, tx.ID)
	require.NoError(t, err)
	assert.Nil(t, again.MatchedMemberID)
}

func TestConfirmSkipsKnownReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := "REF-" + uuid.NewString()
	rows := []ImportRow{{
		Date:          time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		Amount:        decimal.RequireFromString("-30.00"),
		Description:   "Opłata bankowa",
		BankReference: ref,
		ImportSource:  bankimport.FormatCSV,
	}}

	first, err := f.finance.Confirm(ctx, rows, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)
	assert.NotEmpty(t, first.Batch)

	second, err := f.finance.Confirm(ctx, rows, 0)
	require.NoError(t, err)
	assert.Zero(t, second.Created)
	assert.Equal(t, 1, second.Skipped)
	assert.NotEqual(t, first.Batch, second.Batch)
}
