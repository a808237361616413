package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/stw-baltyk/baltyk-manager/internal/model"
	"github.com/stw-baltyk/baltyk-manager/internal/queue"
	"github.com/stw-baltyk/baltyk-manager/internal/repository"
)

// Ledger derives fees from fee-type templates and tracks their payment.
// Overdue is never stored: it is derived on every read from the stored
// status and the due date.
type Ledger struct {
	db      *sql.DB
	fees    *repository.FeeRepo
	types   *repository.FeeTypeRepo
	txs     *repository.TransactionRepo
	members *repository.MemberRepo
	pub     EventPublisher
	clock   Clock
}

// NewLedger wires the ledger.
func NewLedger(db *sql.DB, pub EventPublisher, clock Clock) *Ledger {
	return &Ledger{
		db:      db,
		fees:    repository.NewFeeRepo(db),
		types:   repository.NewFeeTypeRepo(db),
		txs:     repository.NewTransactionRepo(db),
		members: repository.NewMemberRepo(db),
		pub:     pub,
		clock:   clock,
	}
}

// FeeTypeInput carries fee-type fields from the API.
type FeeTypeInput struct {
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	Frequency   model.Frequency `json:"frequency"`
	DueDay      *int            `json:"due_day"`
	DueMonth    *int            `json:"due_month"`
	IsActive    *bool           `json:"is_active"`
	Description *string         `json:"description"`
}

func (in FeeTypeInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return repository.Invalid("name", "required")
	}
	if !in.Amount.IsPositive() {
		return repository.ErrInvalidAmount
	}
	if !in.Frequency.Valid() {
		return repository.Invalid("frequency", "must be yearly, monthly or one_time")
	}
	if in.DueDay != nil && (*in.DueDay < 1 || *in.DueDay > 31) {
		return repository.Invalid("due_day", "must be between 1 and 31")
	}
	if in.DueMonth != nil && (*in.DueMonth < 1 || *in.DueMonth > 12) {
		return repository.Invalid("due_month", "must be between 1 and 12")
	}
	return nil
}

// CreateType adds a fee template.
func (l *Ledger) CreateType(ctx context.Context, in FeeTypeInput) (*model.FeeType, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	ft := &model.FeeType{
		Name:        strings.TrimSpace(in.Name),
		Amount:      in.Amount.Round(2),
		Frequency:   in.Frequency,
		DueDay:      in.DueDay,
		DueMonth:    in.DueMonth,
		IsActive:    in.IsActive == nil || *in.IsActive,
		Description: in.Description,
	}
	if err := l.types.Create(ctx, ft); err != nil {
		return nil, err
	}
	return ft, nil
}

// UpdateType changes a fee template. Once fees reference the template only
// is_active may change; any other difference is a conflict.
func (l *Ledger) UpdateType(ctx context.Context, id uint64, in FeeTypeInput) (*model.FeeType, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	cur, err := l.types.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	next := *cur
	next.Name = strings.TrimSpace(in.Name)
	next.Amount = in.Amount.Round(2)
	next.Frequency = in.Frequency
	next.DueDay = in.DueDay
	next.DueMonth = in.DueMonth
	next.Description = in.Description
	if in.IsActive != nil {
		next.IsActive = *in.IsActive
	}

	used, err := l.types.InUse(ctx, id)
	if err != nil {
		return nil, err
	}
	if used && !sameTemplate(*cur, next) {
		return nil, repository.ErrFeeTypeInUse
	}
	if err := l.types.Update(ctx, &next); err != nil {
		return nil, err
	}
	return l.types.GetByID(ctx, id)
}

// sameTemplate compares every field except is_active.
func sameTemplate(a, b model.FeeType) bool {
	return a.Name == b.Name &&
		a.Amount.Equal(b.Amount) &&
		a.Frequency == b.Frequency &&
		equalPtr(a.DueDay, b.DueDay) &&
		equalPtr(a.DueMonth, b.DueMonth) &&
		equalPtr(a.Description, b.Description)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// SetTypeActive toggles a template; deleting a fee type deactivates it.
func (l *Ledger) SetTypeActive(ctx context.Context, id uint64, active bool) (*model.FeeType, error) {
	if _, err := l.types.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if err := l.types.SetActive(ctx, id, active); err != nil {
		return nil, err
	}
	return l.types.GetByID(ctx, id)
}

// GetType returns one fee template.
func (l *Ledger) GetType(ctx context.Context, id uint64) (*model.FeeType, error) {
	return l.types.GetByID(ctx, id)
}

// ListTypes lists fee templates.
func (l *Ledger) ListTypes(ctx context.Context, activeOnly bool) ([]model.FeeType, error) {
	return l.types.List(ctx, activeOnly)
}

// Generate creates one pending fee per active member for the billing period
// of dueDate. When dueDate is nil it is computed from the template for the
// current period. Members already charged for the period are skipped, so
// running Generate twice creates nothing the second time.
func (l *Ledger) Generate(ctx context.Context, feeTypeID uint64, dueDate *time.Time) (res model.GenerateResult, err error) {
	ctx, span := startSpan(ctx, "ledger.generate", idAttr("fee_type.id", feeTypeID))
	defer func() { endSpan(span, err) }()

	res.FeeTypeID = feeTypeID
	err = withTx(ctx, l.db, func(tx *sql.Tx) error {
		ft, err := l.types.GetByIDTx(ctx, tx, feeTypeID)
		if err != nil {
			return err
		}
		if !ft.IsActive {
			return repository.ErrFeeTypeInactive
		}
		due := ft.DueDateFor(l.clock.Today())
		if dueDate != nil {
			due = model.DateOf(*dueDate)
		}
		res.DueDate = due
		res.Period = model.BillingPeriod(ft.Frequency, due)

		ids, err := l.members.ActiveIDsTx(ctx, tx)
		if err != nil {
			return err
		}
		for _, memberID := range ids {
			created, err := l.fees.InsertIfAbsentTx(ctx, tx, &model.Fee{
				MemberID:  memberID,
				FeeTypeID: ft.ID,
				Amount:    ft.Amount,
				DueDate:   due,
				Period:    res.Period,
			})
			if err != nil {
				return err
			}
			if created {
				res.Created++
			} else {
				res.Skipped++
			}
		}
		return nil
	})
	span.SetAttributes(
		attribute.String("fee.period", res.Period),
		attribute.Int("fees.created", res.Created),
		attribute.Int("fees.skipped", res.Skipped),
	)
	return res, err
}

// FeeInput describes a single manually created fee. Amount and due date
// default to the template's.
type FeeInput struct {
	MemberID  uint64           `json:"member_id"`
	FeeTypeID uint64           `json:"fee_type_id"`
	Amount    *decimal.Decimal `json:"amount"`
	DueDate   *time.Time       `json:"-"`
	Notes     *string          `json:"notes"`
}

// CreateFee charges one member outside of bulk generation.
func (l *Ledger) CreateFee(ctx context.Context, in FeeInput) (*model.FeeView, error) {
	if _, err := l.members.GetByID(ctx, in.MemberID); err != nil {
		return nil, err
	}
	ft, err := l.types.GetByID(ctx, in.FeeTypeID)
	if err != nil {
		return nil, err
	}
	today := l.clock.Today()
	fee := &model.Fee{
		MemberID:  in.MemberID,
		FeeTypeID: ft.ID,
		Amount:    ft.Amount,
		DueDate:   ft.DueDateFor(today),
		Notes:     in.Notes,
	}
	if in.Amount != nil {
		if !in.Amount.IsPositive() {
			return nil, repository.ErrInvalidAmount
		}
		fee.Amount = in.Amount.Round(2)
	}
	if in.DueDate != nil {
		fee.DueDate = model.DateOf(*in.DueDate)
	}
	fee.Period = model.BillingPeriod(ft.Frequency, fee.DueDate)
	if err := l.fees.Create(ctx, fee); err != nil {
		return nil, err
	}
	v := fee.View(today)
	return &v, nil
}

// FeeUpdate lists the fields of a pending fee that may change.
type FeeUpdate struct {
	Amount  *decimal.Decimal `json:"amount"`
	DueDate *time.Time       `json:"-"`
	Notes   *string          `json:"notes"`
}

// UpdateFee edits a pending fee. Paid and cancelled fees are frozen.
func (l *Ledger) UpdateFee(ctx context.Context, id uint64, in FeeUpdate) (*model.FeeView, error) {
	if in.Amount != nil && !in.Amount.IsPositive() {
		return nil, repository.ErrInvalidAmount
	}
	err := withTx(ctx, l.db, func(tx *sql.Tx) error {
		fee, err := l.fees.GetForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if !fee.Payable() {
			return repository.ErrFeeNotPayable
		}
		ft, err := l.types.GetByIDTx(ctx, tx, fee.FeeTypeID)
		if err != nil {
			return err
		}
		if in.Amount != nil {
			fee.Amount = in.Amount.Round(2)
		}
		if in.DueDate != nil {
			fee.DueDate = model.DateOf(*in.DueDate)
			fee.Period = model.BillingPeriod(ft.Frequency, fee.DueDate)
		}
		if in.Notes != nil {
			fee.Notes = in.Notes
		}
		return l.fees.UpdateTx(ctx, tx, fee)
	})
	if err != nil {
		return nil, err
	}
	return l.Get(ctx, id)
}

// MarkPaid settles a pending (or overdue) fee. paidDate defaults to today.
// Paying a paid or cancelled fee is a conflict.
func (l *Ledger) MarkPaid(ctx context.Context, id uint64, paidDate *time.Time, transactionID *uint64) (view *model.FeeView, err error) {
	ctx, span := startSpan(ctx, "ledger.mark_paid", idAttr("fee.id", id))
	defer func() { endSpan(span, err) }()

	paid := l.clock.Today()
	if paidDate != nil {
		paid = model.DateOf(*paidDate)
	}
	err = withTx(ctx, l.db, func(tx *sql.Tx) error {
		if transactionID != nil {
			if _, err := l.txs.GetForUpdateTx(ctx, tx, *transactionID); err != nil {
				return err
			}
		}
		_, err := settleFeeTx(ctx, tx, l.fees, id, nil, paid, transactionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	view, err = l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	publishFeePaid(ctx, l.pub, view.Fee, l.clock.now())
	return view, nil
}

// settleFeeTx locks the fee, checks it is payable and, when memberID is
// given, that it belongs to that member, then marks it paid.
func settleFeeTx(ctx context.Context, tx *sql.Tx, fees *repository.FeeRepo, feeID uint64, memberID *uint64, paid time.Time, transactionID *uint64) (*model.Fee, error) {
	fee, err := fees.GetForUpdateTx(ctx, tx, feeID)
	if err != nil {
		return nil, err
	}
	if memberID != nil && fee.MemberID != *memberID {
		return nil, repository.ErrFeeMemberMismatch
	}
	if !fee.Payable() {
		return nil, repository.ErrFeeNotPayable
	}
	if err := fees.MarkPaidTx(ctx, tx, fee.ID, paid, transactionID); err != nil {
		return nil, err
	}
	fee.Status = model.FeePaid
	fee.PaidDate = &paid
	fee.TransactionID = transactionID
	return fee, nil
}

func publishFeePaid(ctx context.Context, pub EventPublisher, f model.Fee, at time.Time) {
	paid := ""
	if f.PaidDate != nil {
		paid = f.PaidDate.Format(model.DateLayout)
	}
	publish(ctx, pub, queue.TypeFeePaid, queue.FeePaid{
		FeeID:         f.ID,
		MemberID:      f.MemberID,
		MemberName:    f.MemberName,
		FeeTypeName:   f.FeeTypeName,
		Amount:        f.Amount.StringFixed(2),
		PaidDate:      paid,
		TransactionID: f.TransactionID,
	}, at)
}

// Cancel moves a pending fee to cancelled.
func (l *Ledger) Cancel(ctx context.Context, id uint64) (*model.FeeView, error) {
	err := withTx(ctx, l.db, func(tx *sql.Tx) error {
		fee, err := l.fees.GetForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if !fee.Payable() {
			return repository.ErrFeeNotPayable
		}
		return l.fees.CancelTx(ctx, tx, id)
	})
	if err != nil {
		return nil, err
	}
	return l.Get(ctx, id)
}

// Get returns one fee with derived fields.
func (l *Ledger) Get(ctx context.Context, id uint64) (*model.FeeView, error) {
	fee, err := l.fees.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	v := fee.View(l.clock.Today())
	return &v, nil
}

// List returns a page of fees filtered by display status, member and year.
func (l *Ledger) List(ctx context.Context, f repository.FeeFilter, page model.PageRequest) (model.Page[model.FeeView], error) {
	if f.Status != "" && !f.Status.ValidDisplay() {
		return model.Page[model.FeeView]{}, repository.ErrInvalidStatus
	}
	today := l.clock.Today()
	fees, total, err := l.fees.List(ctx, f, today, page)
	if err != nil {
		return model.Page[model.FeeView]{}, err
	}
	return model.NewPage(views(fees, today), total, page), nil
}

// Overdue lists overdue fees of active members, oldest first.
func (l *Ledger) Overdue(ctx context.Context, page model.PageRequest) (model.Page[model.FeeView], error) {
	return l.List(ctx, overdueFilter(), page)
}

// OverdueAll is Overdue without pagination (reports).
func (l *Ledger) OverdueAll(ctx context.Context) ([]model.FeeView, error) {
	today := l.clock.Today()
	fees, err := l.fees.All(ctx, overdueFilter(), today)
	return views(fees, today), err
}

func overdueFilter() repository.FeeFilter {
	return repository.FeeFilter{Status: model.FeeOverdue, ActiveMembersOnly: true, OldestFirst: true}
}

// All returns every fee matching f (reports).
func (l *Ledger) All(ctx context.Context, f repository.FeeFilter) ([]model.FeeView, error) {
	today := l.clock.Today()
	fees, err := l.fees.All(ctx, f, today)
	return views(fees, today), err
}

// MemberFees lists all fees of one member.
func (l *Ledger) MemberFees(ctx context.Context, memberID uint64) ([]model.FeeView, error) {
	if _, err := l.members.GetByID(ctx, memberID); err != nil {
		return nil, err
	}
	return l.All(ctx, repository.FeeFilter{MemberID: memberID})
}

// Stats aggregates fees of a year; year 0 means the current one.
func (l *Ledger) Stats(ctx context.Context, year int) (model.FeeStats, error) {
	today := l.clock.Today()
	if year == 0 {
		year = today.Year()
	}
	return l.fees.Stats(ctx, year, today)
}

func views(fees []model.Fee, today time.Time) []model.FeeView {
	out := make([]model.FeeView, 0, len(fees))
	for _, f := range fees {
		out = append(out, f.View(today))
	}
	return out
}
