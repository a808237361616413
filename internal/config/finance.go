package config

import (
	"github.com/shopspring/decimal"

	"github.com/stw-baltyk/baltyk-manager/internal/bankimport"
)

// FeeTemplate is a suggested fee type offered when setting up fee types.
type FeeTemplate struct {
	Key       string          `json:"key"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	Frequency string          `json:"frequency"`
	DueMonth  int             `json:"due_month,omitempty"`
	DueDay    int             `json:"due_day,omitempty"`
}

// Category is a transaction category with its display label.
type Category struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Alerts holds overdue and balance thresholds used by reports.
type Alerts struct {
	ReminderDaysBefore int             `json:"fee_reminder_days_before"`
	FirstWarningDays   int             `json:"fee_first_warning_days"`
	SecondWarningDays  int             `json:"fee_second_warning_days"`
	SuspensionDays     int             `json:"fee_suspension_days"`
	LowBalanceWarning  decimal.Decimal `json:"low_balance_warning"`
	HighOverdueWarning decimal.Decimal `json:"high_overdue_warning"`
	MaxOverdueMembers  int             `json:"max_overdue_count"`
}

// FinanceConfig is the association's bookkeeping setup.
type FinanceConfig struct {
	Organization string                 `json:"organization"`
	Currency     string                 `json:"currency"`
	DefaultFees  []FeeTemplate          `json:"default_fees"`
	Categories   map[string][]Category  `json:"categories"`
	Alerts       Alerts                 `json:"alerts"`
	Matching     bankimport.MatchConfig `json:"-"`
}

// LoadFinanceConfig returns the built-in setup. The auto-match threshold and
// alert thresholds can be tuned through the environment.
func LoadFinanceConfig() FinanceConfig {
	match := bankimport.DefaultMatchConfig()
	match.Threshold = envFloat("MATCH_AUTO_THRESHOLD", match.Threshold)

	return FinanceConfig{
		Organization: envStr("ORG_NAME", `Stowarzyszenie Turystyki Wodnej "Bałtyk Gdynia"`),
		Currency:     "PLN",
		DefaultFees: []FeeTemplate{
			{Key: "annual", Name: "Składka roczna", Amount: decimal.RequireFromString("120.00"), Frequency: "yearly", DueMonth: 1, DueDay: 31},
			{Key: "entry", Name: "Wpisowe", Amount: decimal.RequireFromString("50.00"), Frequency: "one_time"},
			{Key: "monthly", Name: "Składka miesięczna", Amount: decimal.RequireFromString("15.00"), Frequency: "monthly", DueDay: 10},
			{Key: "junior", Name: "Składka młodzieżowa (do 18 lat)", Amount: decimal.RequireFromString("60.00"), Frequency: "yearly", DueMonth: 1, DueDay: 31},
			{Key: "family", Name: "Składka rodzinna (dodatkowa osoba)", Amount: decimal.RequireFromString("80.00"), Frequency: "yearly", DueMonth: 1, DueDay: 31},
		},
		Categories: map[string][]Category{
			"income": {
				{"fees", "Składki członkowskie", "Wpłaty składek rocznych, miesięcznych, wpisowe"},
				{"donations", "Darowizny", "Darowizny od osób fizycznych i prawnych"},
				{"grants", "Dotacje", "Dotacje z urzędu miasta, programów, sponsoring"},
				{"events_income", "Przychody z wydarzeń", "Opłaty za uczestnictwo w rejsach, spływach"},
				{"equipment_rental", "Wynajem sprzętu", "Opłaty za wynajem kajaków, SUP, żaglówek"},
				{"other_income", "Inne przychody", "Pozostałe przychody"},
			},
			"expense": {
				{"administration", "Administracja", "Opłaty bankowe, ubezpieczenia, biuro"},
				{"statutory_activities", "Działalność statutowa", "Bezpośrednie koszty działalności stowarzyszenia"},
				{"equipment_purchase", "Zakup sprzętu", "Zakup kajaków, SUP, żaglówek, akcesoriów"},
				{"equipment_maintenance", "Konserwacja sprzętu", "Naprawy, przeglądy, części zamienne"},
				{"events_expense", "Organizacja wydarzeń", "Koszty rejsów, spływów, szkoleń"},
				{"training", "Szkolenia", "Kursy instruktorskie, patenty, certyfikaty"},
				{"rent", "Czynsz i media", "Wynajem przystani, magazynu, media"},
				{"other_expense", "Inne wydatki", "Pozostałe wydatki"},
			},
		},
		Alerts: Alerts{
			ReminderDaysBefore: envInt("FEE_REMINDER_DAYS_BEFORE", 7),
			FirstWarningDays:   envInt("FEE_FIRST_WARNING_DAYS", 14),
			SecondWarningDays:  envInt("FEE_SECOND_WARNING_DAYS", 30),
			SuspensionDays:     envInt("FEE_SUSPENSION_DAYS", 60),
			LowBalanceWarning:  decimal.RequireFromString("500.00"),
			HighOverdueWarning: decimal.RequireFromString("1000.00"),
			MaxOverdueMembers:  envInt("MAX_OVERDUE_COUNT", 10),
		},
		Matching: match,
	}
}

// OverdueLevel classifies how late a fee is: "", "first_warning",
// "second_warning" or "suspension".
func (a Alerts) OverdueLevel(daysOverdue int) string {
	switch {
	case daysOverdue >= a.SuspensionDays:
		return "suspension"
	case daysOverdue >= a.SecondWarningDays:
		return "second_warning"
	case daysOverdue >= a.FirstWarningDays:
		return "first_warning"
	}
	return ""
}
