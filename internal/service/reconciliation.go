package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/stw-baltyk/baltyk-manager/internal/bankimport"
	"github.com/stw-baltyk/baltyk-manager/internal/model"
	"github.com/stw-baltyk/baltyk-manager/internal/queue"
	"github.com/stw-baltyk/baltyk-manager/internal/repository"
)

// Reconciliation imports bank statements and links transactions to members
// and the fees they settle.
type Reconciliation struct {
	db      *sql.DB
	txs     *repository.TransactionRepo
	fees    *repository.FeeRepo
	members *repository.MemberRepo
	match   bankimport.MatchConfig
	pub     EventPublisher
	clock   Clock
}

// NewReconciliation wires the reconciliation service.
func NewReconciliation(db *sql.DB, match bankimport.MatchConfig, pub EventPublisher, clock Clock) *Reconciliation {
	return &Reconciliation{
		db:      db,
		txs:     repository.NewTransactionRepo(db),
		fees:    repository.NewFeeRepo(db),
		members: repository.NewMemberRepo(db),
		match:   match,
		pub:     pub,
		clock:   clock,
	}
}

// ImportRow is one candidate transaction of a parsed statement. The same
// shape travels back in Confirm after the treasurer has reviewed it.
type ImportRow struct {
	Date              time.Time              `json:"date"`
	Amount            decimal.Decimal        `json:"amount"` // signed; debits negative
	Type              model.TransactionType  `json:"type"`
	Category          string                 `json:"category"`
	Description       string                 `json:"description"`
	Counterparty      string                 `json:"counterparty"`
	BankReference     string                 `json:"bank_reference"`
	ImportSource      string                 `json:"import_source"`
	MatchedMemberID   *uint64                `json:"matched_member_id"`
	MatchedMemberName string                 `json:"matched_member_name,omitempty"`
	MatchConfidence   *model.MatchConfidence `json:"match_confidence"`
	MatchLevel        bankimport.Level       `json:"match_level,omitempty"`
	MatchScore        float64                `json:"match_score,omitempty"`
	FeeID             *uint64                `json:"fee_id,omitempty"`
	FeeTypeName       string                 `json:"fee_type_name,omitempty"`
}

// ImportPreview is the unpersisted result of Import.
type ImportPreview struct {
	Format       string      `json:"format"`
	Transactions []ImportRow `json:"transactions"`
	Total        int         `json:"total"`
	Matched      int         `json:"matched"`
	Unmatched    int         `json:"unmatched"`
}

// ImportResult reports what Confirm persisted.
type ImportResult struct {
	Created  int    `json:"created"`
	Skipped  int    `json:"skipped"`
	Matched  int    `json:"matched"`
	FeesPaid int    `json:"fees_paid"`
	Batch    string `json:"batch"`
}

// Import parses a statement and pre-fills member suggestions. Nothing is
// written; the preview goes back to the client for review.
func (r *Reconciliation) Import(ctx context.Context, filename, format string, data []byte) (preview *ImportPreview, err error) {
	ctx, span := startSpan(ctx, "reconciliation.import", attribute.String("import.format", format))
	defer func() { endSpan(span, err) }()

	entries, detected, err := bankimport.Parse(filename, format, data)
	if err != nil {
		return nil, mapImportErr(err)
	}
	matcher, err := r.matcher(ctx)
	if err != nil {
		return nil, err
	}

	preview = &ImportPreview{Format: detected, Transactions: make([]ImportRow, 0, len(entries))}
	for _, e := range entries {
		row := rowFromEntry(e)
		if s, ok := matcher.Match(e); ok && matcher.Auto(s) {
			id, conf := s.MemberID, model.MatchAuto
			row.MatchedMemberID = &id
			row.MatchedMemberName = s.MemberName
			row.MatchConfidence = &conf
			row.MatchLevel = s.Level
			row.MatchScore = s.Score
			row.FeeID = s.FeeID
			row.FeeTypeName = s.FeeTypeName
			preview.Matched++
		}
		preview.Transactions = append(preview.Transactions, row)
	}
	preview.Total = len(preview.Transactions)
	preview.Unmatched = preview.Total - preview.Matched
	span.SetAttributes(
		attribute.Int("import.total", preview.Total),
		attribute.Int("import.matched", preview.Matched),
	)
	return preview, nil
}

func mapImportErr(err error) error {
	switch {
	case errors.Is(err, bankimport.ErrUnknownFormat):
		return repository.ErrUnknownFormat
	case errors.Is(err, bankimport.ErrNoTransactions):
		return repository.ErrNoTransactions
	}
	return repository.Invalid("file", err.Error())
}

func rowFromEntry(e bankimport.Entry) ImportRow {
	typ := model.TransactionIncome
	if !e.IsIncome() {
		typ = model.TransactionExpense
	}
	return ImportRow{
		Date:          e.Date,
		Amount:        e.Amount,
		Type:          typ,
		Category:      model.DefaultCategory(typ),
		Description:   e.Description,
		Counterparty:  e.Counterparty,
		BankReference: e.BankReference,
		ImportSource:  e.Source,
	}
}

// matcher indexes the current members and their pending fees.
func (r *Reconciliation) matcher(ctx context.Context) (*bankimport.Matcher, error) {
	candidates, err := r.candidates(ctx)
	if err != nil {
		return nil, err
	}
	fees, err := r.fees.OpenByMember(ctx)
	if err != nil {
		return nil, err
	}
	open := make([]bankimport.OpenFee, 0, len(fees))
	for _, f := range fees {
		open = append(open, bankimport.OpenFee{
			ID:          f.ID,
			MemberID:    f.MemberID,
			Amount:      f.Amount,
			DueDate:     f.DueDate,
			FeeTypeName: f.FeeTypeName,
		})
	}
	return bankimport.NewMatcher(r.match, candidates, open), nil
}

// candidates lists members that may still pay: everyone except former.
func (r *Reconciliation) candidates(ctx context.Context) ([]bankimport.Candidate, error) {
	members, err := r.members.All(ctx, repository.MemberFilter{})
	if err != nil {
		return nil, err
	}
	out := make([]bankimport.Candidate, 0, len(members))
	for _, m := range members {
		if m.Status == model.MemberFormer {
			continue
		}
		c := bankimport.Candidate{ID: m.ID, FirstName: m.FirstName, LastName: m.LastName}
		if m.MemberNumber != nil {
			c.MemberNumber = *m.MemberNumber
		}
		out = append(out, c)
	}
	return out, nil
}

// Confirm persists reviewed rows in one transaction under a fresh batch id.
// Rows whose bank reference is already stored are skipped.
func (r *Reconciliation) Confirm(ctx context.Context, rows []ImportRow, actorID uint64) (res ImportResult, err error) {
	ctx, span := startSpan(ctx, "reconciliation.confirm", attribute.Int("import.rows", len(rows)))
	defer func() { endSpan(span, err) }()

	if len(rows) == 0 {
		return res, repository.ErrNoTransactions
	}
	res.Batch = uuid.NewString()
	source := importSource(rows[0].ImportSource)
	now := r.clock.now().UTC()
	var paid []uint64

	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, row := range rows {
			if row.Date.IsZero() || row.Amount.IsZero() {
				return repository.Invalid("transactions", "row without date or amount")
			}
			if ref := strings.TrimSpace(row.BankReference); ref != "" {
				exists, err := r.txs.ReferenceExistsTx(ctx, tx, ref)
				if err != nil {
					return err
				}
				if exists {
					res.Skipped++
					continue
				}
			}
			t := transactionFromRow(row, res.Batch, now, actorID)
			if t.MatchedMemberID != nil {
				if _, err := r.members.GetByIDTx(ctx, tx, *t.MatchedMemberID); err != nil {
					return err
				}
			}
			if err := r.txs.CreateTx(ctx, tx, t); err != nil {
				if errors.Is(err, repository.ErrReferenceExists) {
					res.Skipped++
					continue
				}
				return err
			}
			res.Created++
			if t.MatchedMemberID == nil {
				continue
			}
			res.Matched++
			if row.FeeID == nil || t.Type != model.TransactionIncome {
				continue
			}
			txID := t.ID
			_, err := settleFeeTx(ctx, tx, r.fees, *row.FeeID, t.MatchedMemberID, model.DateOf(t.Date), &txID)
			switch {
			case err == nil:
				res.FeesPaid++
				paid = append(paid, *row.FeeID)
			case errors.Is(err, repository.ErrFeeNotPayable),
				errors.Is(err, repository.ErrFeeMemberMismatch),
				errors.Is(err, repository.ErrFeeNotFound):
				// The row is kept; the fee stays as it was.
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}
	span.SetAttributes(
		attribute.String("import.batch", res.Batch),
		attribute.Int("import.created", res.Created),
		attribute.Int("import.skipped", res.Skipped),
	)

	at := r.clock.now()
	for _, id := range paid {
		if f, err := r.fees.GetByID(ctx, id); err == nil {
			publishFeePaid(ctx, r.pub, *f, at)
		}
	}
	publish(ctx, r.pub, queue.TypeImportConfirmed, queue.ImportConfirmed{
		Batch:   res.Batch,
		Source:  source,
		Created: res.Created,
		Skipped: res.Skipped,
		Matched: res.Matched,
	}, at)
	return res, nil
}

// transactionFromRow derives type and absolute amount from the sign. A
// member chosen by the heuristic keeps auto confidence; anything else the
// treasurer set is manual.
func transactionFromRow(row ImportRow, batch string, now time.Time, actorID uint64) *model.Transaction {
	typ := model.TransactionIncome
	if row.Amount.IsNegative() {
		typ = model.TransactionExpense
	}
	category := row.Category
	if !model.ValidCategory(typ, category) {
		category = model.DefaultCategory(typ)
	}
	t := &model.Transaction{
		Date:         model.DateOf(row.Date),
		Amount:       row.Amount.Abs().Round(2),
		Type:         typ,
		Category:     category,
		Description:  optString(row.Description),
		Counterparty: optString(row.Counterparty),
		ImportSource: importSource(row.ImportSource),
		ImportBatch:  &batch,
		ImportedAt:   &now,
	}
	if ref := strings.TrimSpace(row.BankReference); ref != "" {
		t.BankReference = &ref
	}
	if actorID != 0 {
		t.CreatedByID = &actorID
	}
	if row.MatchedMemberID != nil {
		id := *row.MatchedMemberID
		conf := model.MatchManual
		if row.MatchConfidence != nil && *row.MatchConfidence == model.MatchAuto {
			conf = model.MatchAuto
		}
		t.MatchedMemberID = &id
		t.MatchConfidence = &conf
	}
	return t
}

func importSource(s string) string {
	if s == model.SourceMT940 || s == model.SourceCSV {
		return s
	}
	return model.SourceManual
}

func optString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// TransactionInput carries a manually entered transaction.
type TransactionInput struct {
	Date         time.Time             `json:"-"`
	Amount       decimal.Decimal       `json:"amount"`
	Type         model.TransactionType `json:"type"`
	Category     string                `json:"category"`
	Description  *string               `json:"description"`
	Counterparty *string               `json:"counterparty"`
	MemberID     *uint64               `json:"member_id"`
}

func (in *TransactionInput) validate() error {
	if in.Date.IsZero() {
		return repository.Invalid("date", "required")
	}
	if !in.Type.Valid() {
		return repository.Invalid("type", "must be income or expense")
	}
	if !in.Amount.IsPositive() {
		return repository.ErrInvalidAmount
	}
	if in.Category == "" {
		in.Category = model.DefaultCategory(in.Type)
	}
	if !model.ValidCategory(in.Type, in.Category) {
		return repository.ErrInvalidCategory
	}
	return nil
}

// Create records a manual transaction.
func (r *Reconciliation) Create(ctx context.Context, in TransactionInput, actorID uint64) (*model.Transaction, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	t := &model.Transaction{
		Date:         model.DateOf(in.Date),
		Amount:       in.Amount.Round(2),
		Type:         in.Type,
		Category:     in.Category,
		Description:  in.Description,
		Counterparty: in.Counterparty,
		ImportSource: model.SourceManual,
	}
	if actorID != 0 {
		t.CreatedByID = &actorID
	}
	if in.MemberID != nil {
		if _, err := r.members.GetByID(ctx, *in.MemberID); err != nil {
			return nil, err
		}
		conf := model.MatchManual
		t.MatchedMemberID = in.MemberID
		t.MatchConfidence = &conf
	}
	if err := r.txs.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Update rewrites the descriptive fields. Matching goes through Match.
func (r *Reconciliation) Update(ctx context.Context, id uint64, in TransactionInput) (*model.Transaction, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	t, err := r.txs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Date = model.DateOf(in.Date)
	t.Amount = in.Amount.Round(2)
	t.Type = in.Type
	t.Category = in.Category
	t.Description = in.Description
	t.Counterparty = in.Counterparty
	if err := r.txs.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Get returns one transaction.
func (r *Reconciliation) Get(ctx context.Context, id uint64) (*model.Transaction, error) {
	return r.txs.GetByID(ctx, id)
}

// List returns a page of transactions, newest first.
func (r *Reconciliation) List(ctx context.Context, f repository.TransactionFilter, page model.PageRequest) (model.Page[model.Transaction], error) {
	if f.Type != "" && !f.Type.Valid() {
		return model.Page[model.Transaction]{}, repository.Invalid("type", "must be income or expense")
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return model.Page[model.Transaction]{}, repository.ErrInvalidDateRange
	}
	items, total, err := r.txs.List(ctx, f, page)
	if err != nil {
		return model.Page[model.Transaction]{}, err
	}
	return model.NewPage(items, total, page), nil
}

// All returns every transaction matching f (reports).
func (r *Reconciliation) All(ctx context.Context, f repository.TransactionFilter) ([]model.Transaction, error) {
	return r.txs.All(ctx, f)
}

// Match links a transaction to a member and, optionally, settles one of the
// member's pending fees with it. Both happen in one transaction. A
// transaction matched to someone else must be unmatched first.
func (r *Reconciliation) Match(ctx context.Context, id, memberID uint64, feeID *uint64) (t *model.Transaction, err error) {
	ctx, span := startSpan(ctx, "reconciliation.match", idAttr("transaction.id", id), idAttr("member.id", memberID))
	defer func() { endSpan(span, err) }()

	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		cur, err := r.txs.GetForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.MatchedMemberID != nil && *cur.MatchedMemberID != memberID {
			return repository.ErrAlreadyMatched
		}
		if _, err := r.members.GetByIDTx(ctx, tx, memberID); err != nil {
			return err
		}
		conf := model.MatchManual
		if err := r.txs.SetMatchTx(ctx, tx, id, &memberID, &conf); err != nil {
			return err
		}
		if feeID == nil {
			return nil
		}
		if cur.Type != model.TransactionIncome {
			return repository.Invalid("fee_id", "only income can settle a fee")
		}
		_, err = settleFeeTx(ctx, tx, r.fees, *feeID, &memberID, model.DateOf(cur.Date), &id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if feeID != nil {
		if f, err := r.fees.GetByID(ctx, *feeID); err == nil {
			publishFeePaid(ctx, r.pub, *f, r.clock.now())
		}
	}
	return r.txs.GetByID(ctx, id)
}

// Unmatch clears the member link and reopens every fee the transaction
// settled. Unmatching an unmatched transaction changes nothing.
func (r *Reconciliation) Unmatch(ctx context.Context, id uint64) (t *model.Transaction, err error) {
	ctx, span := startSpan(ctx, "reconciliation.unmatch", idAttr("transaction.id", id))
	defer func() { endSpan(span, err) }()

	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		cur, err := r.txs.GetForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if !cur.IsMatched() {
			return nil
		}
		reopened, err := r.fees.ReopenByTransactionTx(ctx, tx, id)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.Int64("fees.reopened", reopened))
		return r.txs.SetMatchTx(ctx, tx, id, nil, nil)
	})
	if err != nil {
		return nil, err
	}
	return r.txs.GetByID(ctx, id)
}

// Suggest ranks members for manual matching of one transaction.
func (r *Reconciliation) Suggest(ctx context.Context, id uint64) ([]bankimport.Scored, error) {
	t, err := r.txs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	candidates, err := r.candidates(ctx)
	if err != nil {
		return nil, err
	}
	var desc, cp string
	if t.Description != nil {
		desc = *t.Description
	}
	if t.Counterparty != nil {
		cp = *t.Counterparty
	}
	out := bankimport.Rank(desc, cp, candidates)
	if out == nil {
		out = []bankimport.Scored{}
	}
	return out, nil
}

// BalanceSummary is the all-time balance next to the current year's.
type BalanceSummary struct {
	AllTime model.Balance `json:"all_time"`
	Year    int           `json:"year"`
	Current model.Balance `json:"current_year"`
}

// Balance aggregates income and expenses; nothing is cached.
func (r *Reconciliation) Balance(ctx context.Context) (BalanceSummary, error) {
	today := r.clock.Today()
	all, err := r.txs.Balance(ctx, nil, nil)
	if err != nil {
		return BalanceSummary{}, err
	}
	from, _ := model.YearBounds(today.Year())
	cur, err := r.txs.Balance(ctx, &from, &today)
	if err != nil {
		return BalanceSummary{}, err
	}
	return BalanceSummary{AllTime: all, Year: today.Year(), Current: cur}, nil
}

// Stats breaks one year down by category; year 0 means the current one.
func (r *Reconciliation) Stats(ctx context.Context, year int) (model.FinanceStats, error) {
	if year == 0 {
		year = r.clock.Today().Year()
	}
	from, to := model.YearBounds(year)
	totals, err := r.txs.Balance(ctx, &from, &to)
	if err != nil {
		return model.FinanceStats{}, err
	}
	cats, err := r.txs.ByCategory(ctx, year)
	if err != nil {
		return model.FinanceStats{}, err
	}
	if cats == nil {
		cats = []model.CategoryTotal{}
	}
	unmatched, err := r.txs.CountUnmatchedIncome(ctx, year)
	if err != nil {
		return model.FinanceStats{}, err
	}
	return model.FinanceStats{Year: year, Totals: totals, ByCategory: cats, Unmatched: unmatched}, nil
}
