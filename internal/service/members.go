package service

import (
	"context"
	"database/sql"
	"net/mail"
	"strings"
	"time"

	"github.com/stw-baltyk/baltyk-manager/internal/model"
	"github.com/stw-baltyk/baltyk-manager/internal/repository"
)

// Members keeps the member register.
type Members struct {
	members *repository.MemberRepo
	clock   Clock
}

// NewMembers wires the member register.
func NewMembers(db *sql.DB, clock Clock) *Members {
	return &Members{members: repository.NewMemberRepo(db), clock: clock}
}

// MemberInput carries member fields from the API.
type MemberInput struct {
	MemberNumber *string    `json:"member_number"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Email        string     `json:"email"`
	Phone        *string    `json:"phone"`
	Address      *string    `json:"address"`
	JoinDate     *time.Time `json:"-"`
	Notes        *string    `json:"notes"`
	DataConsent  bool       `json:"data_consent"`
}

func (in *MemberInput) validate() error {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.FirstName == "" {
		return repository.Invalid("first_name", "required")
	}
	if in.LastName == "" {
		return repository.Invalid("last_name", "required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return repository.Invalid("email", "not a valid address")
	}
	if in.MemberNumber != nil {
		n := strings.TrimSpace(*in.MemberNumber)
		if n == "" {
			in.MemberNumber = nil
		} else {
			in.MemberNumber = &n
		}
	}
	return nil
}

// Create registers a member. Giving consent stamps today as consent date.
func (s *Members) Create(ctx context.Context, in MemberInput) (*model.Member, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	today := s.clock.Today()
	m := &model.Member{
		MemberNumber: in.MemberNumber,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		Phone:        in.Phone,
		Address:      in.Address,
		JoinDate:     today,
		Status:       model.MemberActive,
		Notes:        in.Notes,
		DataConsent:  in.DataConsent,
	}
	if in.JoinDate != nil {
		m.JoinDate = model.DateOf(*in.JoinDate)
	}
	if m.DataConsent {
		m.ConsentDate = &today
	}
	if err := s.members.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Update rewrites the editable fields. Consent given now is stamped with
// today; withdrawing it clears the date.
func (s *Members) Update(ctx context.Context, id uint64, in MemberInput) (*model.Member, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	m, err := s.members.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	setConsent(m, in.DataConsent, s.clock.Today())
	m.MemberNumber = in.MemberNumber
	m.FirstName = in.FirstName
	m.LastName = in.LastName
	m.Email = in.Email
	m.Phone = in.Phone
	m.Address = in.Address
	m.Notes = in.Notes
	if in.JoinDate != nil {
		m.JoinDate = model.DateOf(*in.JoinDate)
	}
	if err := s.members.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// MemberPatch carries a partial update. A nil field is left unchanged; an
// empty string clears an optional text field.
type MemberPatch struct {
	MemberNumber *string    `json:"member_number"`
	FirstName    *string    `json:"first_name"`
	LastName     *string    `json:"last_name"`
	Email        *string    `json:"email"`
	Phone        *string    `json:"phone"`
	Address      *string    `json:"address"`
	JoinDate     *time.Time `json:"-"`
	Notes        *string    `json:"notes"`
	DataConsent  *bool      `json:"data_consent"`
}

// apply merges p into m and validates the result.
func (p MemberPatch) apply(m *model.Member, today time.Time) error {
	if p.FirstName != nil {
		m.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		m.LastName = *p.LastName
	}
	if p.Email != nil {
		m.Email = *p.Email
	}
	m.MemberNumber = patchText(m.MemberNumber, p.MemberNumber)
	m.Phone = patchText(m.Phone, p.Phone)
	m.Address = patchText(m.Address, p.Address)
	m.Notes = patchText(m.Notes, p.Notes)
	if p.JoinDate != nil {
		m.JoinDate = model.DateOf(*p.JoinDate)
	}
	if p.DataConsent != nil {
		setConsent(m, *p.DataConsent, today)
	}

	in := MemberInput{MemberNumber: m.MemberNumber, FirstName: m.FirstName, LastName: m.LastName, Email: m.Email}
	if err := in.validate(); err != nil {
		return err
	}
	m.MemberNumber, m.FirstName, m.LastName, m.Email = in.MemberNumber, in.FirstName, in.LastName, in.Email
	return nil
}

func patchText(cur, v *string) *string {
	if v == nil {
		return cur
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}

// setConsent stamps consent given now with today and clears the date when
// consent is withdrawn.
func setConsent(m *model.Member, consent bool, today time.Time) {
	switch {
	case consent && !m.DataConsent:
		m.ConsentDate = &today
	case !consent:
		m.ConsentDate = nil
	}
	m.DataConsent = consent
}

// Patch updates only the fields present in p.
func (s *Members) Patch(ctx context.Context, id uint64, p MemberPatch) (*model.Member, error) {
	m, err := s.members.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.apply(m, s.clock.Today()); err != nil {
		return nil, err
	}
	if err := s.members.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Get returns the member with the pending total.
func (s *Members) Get(ctx context.Context, id uint64) (*model.Member, error) {
	return s.members.GetByID(ctx, id)
}

// List returns a page of members.
func (s *Members) List(ctx context.Context, f repository.MemberFilter, page model.PageRequest) (model.Page[model.Member], error) {
	if f.Status != "" && !f.Status.Valid() {
		return model.Page[model.Member]{}, repository.ErrInvalidStatus
	}
	items, total, err := s.members.List(ctx, f, page)
	if err != nil {
		return model.Page[model.Member]{}, err
	}
	return model.NewPage(items, total, page), nil
}

// All returns every member matching f (reports).
func (s *Members) All(ctx context.Context, f repository.MemberFilter) ([]model.Member, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, repository.ErrInvalidStatus
	}
	return s.members.All(ctx, f)
}

// Suspend moves an active member to suspended.
func (s *Members) Suspend(ctx context.Context, id uint64) (*model.Member, error) {
	return s.transition(ctx, id, model.MemberSuspended)
}

// Reactivate brings a suspended or former member back to active.
func (s *Members) Reactivate(ctx context.Context, id uint64) (*model.Member, error) {
	return s.transition(ctx, id, model.MemberActive)
}

// Deactivate is the soft delete: the member becomes former.
func (s *Members) Deactivate(ctx context.Context, id uint64) (*model.Member, error) {
	return s.transition(ctx, id, model.MemberFormer)
}

func (s *Members) transition(ctx context.Context, id uint64, to model.MemberStatus) (*model.Member, error) {
	m, err := s.members.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !m.Status.CanTransition(to) {
		return nil, repository.ErrMemberTransition
	}
	if err := s.members.SetStatus(ctx, id, m.Status, to); err != nil {
		return nil, err
	}
	return s.members.GetByID(ctx, id)
}

// Stats counts members per status.
func (s *Members) Stats(ctx context.Context) (model.MemberStats, error) {
	return s.members.Stats(ctx)
}
