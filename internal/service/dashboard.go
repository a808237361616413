package service

import (
	"context"

	"github.com/stw-baltyk/baltyk-manager/internal/config"
	"github.com/stw-baltyk/baltyk-manager/internal/model"
	"github.com/stw-baltyk/baltyk-manager/internal/repository"
)

// Alert is a dashboard warning raised by one of the configured thresholds.
type Alert struct {
	Level string `json:"level"` // warning | critical
	Code  string `json:"code"`
	Count int    `json:"count,omitempty"`
}

// DashboardData is the board's overview, computed per request.
type DashboardData struct {
	Members        model.MemberStats    `json:"members"`
	Fees           model.FeeStats       `json:"fees"`
	Finance        BalanceSummary       `json:"finance"`
	Equipment      model.EquipmentStats `json:"equipment"`
	Events         model.EventStats     `json:"events"`
	UpcomingEvents []model.EventView    `json:"upcoming_events"`
	OverdueMembers int                  `json:"overdue_members"`
	Alerts         []Alert              `json:"alerts"`
}

// OverdueRow is an overdue fee with its escalation level.
type OverdueRow struct {
	model.FeeView
	Level string `json:"warning_level,omitempty"`
}

// Dashboard aggregates the other services for reports.
type Dashboard struct {
	Members      *Members
	Ledger       *Ledger
	Finance      *Reconciliation
	Reservations *Reservations
	Registration *Registration
	Alerts       config.Alerts
}

const upcomingOnDashboard = 5

// Overview collects statistics and evaluates alert thresholds.
func (d *Dashboard) Overview(ctx context.Context) (*DashboardData, error) {
	var (
		out DashboardData
		err error
	)
	if out.Members, err = d.Members.Stats(ctx); err != nil {
		return nil, err
	}
	if out.Fees, err = d.Ledger.Stats(ctx, 0); err != nil {
		return nil, err
	}
	if out.Finance, err = d.Finance.Balance(ctx); err != nil {
		return nil, err
	}
	if out.Equipment, err = d.Reservations.EquipmentStats(ctx); err != nil {
		return nil, err
	}
	if out.Events, err = d.Registration.Stats(ctx, 0); err != nil {
		return nil, err
	}
	upcoming, err := d.Registration.ListEvents(ctx,
		repository.EventFilter{Upcoming: true}, model.NewPageRequest(1, upcomingOnDashboard))
	if err != nil {
		return nil, err
	}
	out.UpcomingEvents = upcoming.Items

	overdue, err := d.Ledger.OverdueAll(ctx)
	if err != nil {
		return nil, err
	}
	out.OverdueMembers = distinctMembers(overdue)
	out.Alerts = d.evaluate(&out)
	return &out, nil
}

func (d *Dashboard) evaluate(data *DashboardData) []Alert {
	alerts := []Alert{}
	if data.Finance.AllTime.Balance.LessThan(d.Alerts.LowBalanceWarning) {
		alerts = append(alerts, Alert{Level: "warning", Code: "low_balance"})
	}
	if data.Fees.OverdueAmount.GreaterThan(d.Alerts.HighOverdueWarning) {
		alerts = append(alerts, Alert{Level: "warning", Code: "high_overdue_amount", Count: data.Fees.OverdueCount})
	}
	if data.OverdueMembers > d.Alerts.MaxOverdueMembers {
		alerts = append(alerts, Alert{Level: "critical", Code: "many_overdue_members", Count: data.OverdueMembers})
	}
	if data.Equipment.NeedsMaintenance > 0 {
		alerts = append(alerts, Alert{Level: "warning", Code: "maintenance_due", Count: data.Equipment.NeedsMaintenance})
	}
	return alerts
}

func distinctMembers(fees []model.FeeView) int {
	seen := map[uint64]struct{}{}
	for _, f := range fees {
		seen[f.MemberID] = struct{}{}
	}
	return len(seen)
}

// OverdueReport lists overdue fees of active members, oldest first, each
// tagged with the escalation level its age has reached.
func (d *Dashboard) OverdueReport(ctx context.Context) ([]OverdueRow, error) {
	fees, err := d.Ledger.OverdueAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]OverdueRow, 0, len(fees))
	for _, f := range fees {
		out = append(out, OverdueRow{FeeView: f, Level: d.Alerts.OverdueLevel(f.DaysOverdue)})
	}
	return out, nil
}
