// Package i18n holds the user-facing error messages in Polish and English.
// Polish is the default; English is served when Accept-Language prefers it.
package i18n

import (
	"golang.org/x/text/language"
)

var (
	supported = []language.Tag{language.Polish, language.English}
	matcher   = language.NewMatcher(supported)
)

// Lang picks the catalogue language for an Accept-Language header value.
func Lang(acceptLanguage string) language.Tag {
	if acceptLanguage == "" {
		return language.Polish
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return language.Polish
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return language.Polish
	}
	return supported[idx]
}

// Message returns the localized text for code, or the code itself when the
// catalogue has no entry.
func Message(lang language.Tag, code string) string {
	cat := polish
	if lang == language.English {
		cat = english
	}
	if code == "" {
		code = "internal"
	}
	if m, ok := cat[code]; ok {
		return m
	}
	return code
}

// Localize is Message with header parsing.
func Localize(acceptLanguage, code string) string {
	return Message(Lang(acceptLanguage), code)
}

var polish = map[string]string{
	"validation":  "Nieprawidłowe dane",
	"not_found":   "Nie znaleziono",
	"forbidden":   "Brak uprawnień",
	"conflict":    "Operacja sprzeczna z bieżącym stanem",
	"internal":    "Wewnętrzny błąd serwera",
	"bad_request": "Nieprawidłowe żądanie",

	"missing_token":         "Brak tokenu dostępu",
	"invalid_token":         "Nieprawidłowy lub wygasły token",
	"invalid_refresh_token": "Nieprawidłowy lub wygasły token odświeżania",
	"too_many_requests":     "Zbyt wiele żądań, spróbuj ponownie później",
	"invalid_id":            "Nieprawidłowy identyfikator",
	"invalid_body":          "Nieprawidłowa treść żądania",
	"invalid_date":          "Nieprawidłowy format daty",
	"invalid_format":        "Nieobsługiwany format raportu",
	"file_required":         "Nie przesłano pliku",
	"file_too_large":        "Plik jest zbyt duży",

	"invalid_credentials": "Nieprawidłowy e-mail lub hasło",
	"invalid_date_range":  "Data zakończenia musi być późniejsza niż data rozpoczęcia",
	"invalid_status":      "Nieprawidłowy status",
	"invalid_category":    "Nieznana kategoria",
	"invalid_amount":      "Kwota musi być dodatnia",
	"fee_member_mismatch": "Opłata należy do innego członka",
	"no_transactions":     "Nie znaleziono transakcji w pliku",
	"unknown_format":      "Nie rozpoznano formatu pliku",
	"weak_password":       "Hasło musi mieć co najmniej 8 znaków",

	"user_not_found":        "Nie znaleziono użytkownika",
	"member_not_found":      "Nie znaleziono członka",
	"fee_not_found":         "Nie znaleziono opłaty",
	"fee_type_not_found":    "Nie znaleziono rodzaju opłaty",
	"transaction_not_found": "Nie znaleziono transakcji",
	"equipment_not_found":   "Nie znaleziono sprzętu",
	"reservation_not_found": "Nie znaleziono rezerwacji",
	"event_not_found":       "Nie znaleziono wydarzenia",
	"participant_not_found": "Nie znaleziono zgłoszenia",
	"report_empty":          "Brak danych do raportu",

	"not_own_registration": "Możesz anulować tylko własne zgłoszenie",
	"account_inactive":     "Konto jest nieaktywne",

	"email_exists":                  "Adres e-mail jest już zajęty",
	"member_number_exists":          "Numer członkowski jest już zajęty",
	"inventory_number_exists":       "Numer inwentarzowy jest już zajęty",
	"member_status_transition":      "Niedozwolona zmiana statusu członka",
	"member_not_active":             "Członek nie jest aktywny",
	"fee_type_inactive":             "Rodzaj opłaty jest nieaktywny",
	"fee_type_in_use":               "Rodzaj opłaty ma już naliczone opłaty; można zmienić tylko aktywność",
	"fee_not_payable":               "Opłata nie oczekuje na płatność",
	"fee_exists":                    "Opłata za ten okres już istnieje",
	"transaction_already_matched":   "Transakcja jest przypisana do innego członka",
	"bank_reference_exists":         "Transakcja o tym numerze referencyjnym już istnieje",
	"equipment_unavailable":         "Sprzęt jest niedostępny",
	"reservation_overlap":           "Sprzęt jest już zarezerwowany w tym terminie",
	"reservation_status_transition": "Niedozwolona zmiana statusu rezerwacji",
	"registration_closed":           "Zapisy na wydarzenie są zamknięte",
	"already_registered":            "Członek jest już zapisany na to wydarzenie",
	"participant_status_transition": "Niedozwolona zmiana statusu zgłoszenia",
	"event_full":                    "Brak wolnych miejsc",
	"capacity_below_active":         "Limit miejsc nie może być mniejszy niż liczba zapisanych",
	"event_status_transition":       "Niedozwolona zmiana statusu wydarzenia",
}

var english = map[string]string{
	"validation":  "Invalid input",
	"not_found":   "Not found",
	"forbidden":   "Forbidden",
	"conflict":    "Operation conflicts with the current state",
	"internal":    "Internal server error",
	"bad_request": "Bad request",

	"missing_token":         "Missing access token",
	"invalid_token":         "Invalid or expired token",
	"invalid_refresh_token": "Invalid or expired refresh token",
	"too_many_requests":     "Too many requests, try again later",
	"invalid_id":            "Invalid identifier",
	"invalid_body":          "Invalid request body",
	"invalid_date":          "Invalid date format",
	"invalid_format":        "Unsupported report format",
	"file_required":         "No file uploaded",
	"file_too_large":        "File is too large",

	"invalid_credentials": "Invalid email or password",
	"invalid_date_range":  "End must be after start",
	"invalid_status":      "Invalid status",
	"invalid_category":    "Unknown category",
	"invalid_amount":      "Amount must be positive",
	"fee_member_mismatch": "Fee belongs to a different member",
	"no_transactions":     "No transactions found in the file",
	"unknown_format":      "Unrecognized file format",
	"weak_password":       "Password must be at least 8 characters",

	"user_not_found":        "User not found",
	"member_not_found":      "Member not found",
	"fee_not_found":         "Fee not found",
	"fee_type_not_found":    "Fee type not found",
	"transaction_not_found": "Transaction not found",
	"equipment_not_found":   "Equipment not found",
	"reservation_not_found": "Reservation not found",
	"event_not_found":       "Event not found",
	"participant_not_found": "Registration not found",
	"report_empty":          "No data for this report",

	"not_own_registration": "You can only cancel your own registration",
	"account_inactive":     "Account is inactive",

	"email_exists":                  "Email is already in use",
	"member_number_exists":          "Member number is already in use",
	"inventory_number_exists":       "Inventory number is already in use",
	"member_status_transition":      "Member status change not allowed",
	"member_not_active":             "Member is not active",
	"fee_type_inactive":             "Fee type is inactive",
	"fee_type_in_use":               "Fee type already has fees; only the active flag may change",
	"fee_not_payable":               "Fee is not pending",
	"fee_exists":                    "A fee for this period already exists",
	"transaction_already_matched":   "Transaction is matched to another member",
	"bank_reference_exists":         "A transaction with this bank reference already exists",
	"equipment_unavailable":         "Equipment is unavailable",
	"reservation_overlap":           "Equipment is already reserved for this period",
	"reservation_status_transition": "Reservation status change not allowed",
	"registration_closed":           "Registration for this event is closed",
	"already_registered":            "Member is already registered for this event",
	"participant_status_transition": "Registration status change not allowed",
	"event_full":                    "No free places",
	"capacity_below_active":         "Capacity cannot be lower than the number of registered participants",
	"event_status_transition":       "Event status change not allowed",
}
