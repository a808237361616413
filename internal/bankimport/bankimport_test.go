package bankimport

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

const sampleMT940 = `:20:STARTUMS
:25:PL12345678901234567890123456
:28C:00001/001
:60F:C250101PLN1000,00
:61:2501150115C120,00NTRFNONREF//BR25011500001
:86:/ORD/JAN KOWALSKI/REMI/SKLADKA ROCZNA NR 12
:61:250116D45,50NTRFREF123
:86:OPLATA ZA PRAD
NA RZECZ: ENERGA
:62F:C250116PLN1074,50
-
`

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParseMT940(t *testing.T) {
	entries, err := ParseMT940([]byte(sampleMT940))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	in := entries[0]
	assert.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), in.Date)
	assert.True(t, dec("120").Equal(in.Amount))
	assert.Equal(t, "BR25011500001", in.BankReference)
	assert.Equal(t, "JAN KOWALSKI", in.Counterparty)
	assert.Equal(t, "JAN KOWALSKI/REMI/SKLADKA ROCZNA NR 12", in.Description)
	assert.Equal(t, FormatMT940, in.Source)

	out := entries[1]
	assert.True(t, dec("-45.50").Equal(out.Amount))
	assert.Equal(t, "REF123", out.BankReference)
	assert.Equal(t, "ENERGA", out.Counterparty)
	assert.Equal(t, "OPLATA ZA PRAD NA RZECZ: ENERGA", out.Description)
}

func TestParseMT940Malformed(t *testing.T) {
	_, err := ParseMT940([]byte(":61:garbage\n"))
	require.Error(t, err)
}

func TestParseCSVPolishExport(t *testing.T) {
	src := "Data operacji;Kwota;Opis operacji;Nadawca/Odbiorca;Numer referencyjny\n" +
		"15.01.2025;\"1 234,56 zł\";Składka  roczna;Jan Kowalski;REF1\n" +
		"2025-01-16;-50,00 PLN;Opłata;Energa;\n" +
		";10,00;brak daty;;\n"

	entries, err := ParseCSV([]byte(src))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), entries[0].Date)
	assert.True(t, dec("1234.56").Equal(entries[0].Amount))
	assert.Equal(t, "Składka roczna", entries[0].Description)
	assert.Equal(t, "Jan Kowalski", entries[0].Counterparty)
	assert.Equal(t, "REF1", entries[0].BankReference)

	assert.True(t, dec("-50").Equal(entries[1].Amount))
	assert.Empty(t, entries[1].BankReference)
	assert.Equal(t, FormatCSV, entries[1].Source)
}

func TestParseCSVWindows1250(t *testing.T) {
	src := "Data,Kwota,Tytuł\n2025.02.01,\"60,00\",Składka członkowska\n"
	encoded, err := charmap.Windows1250.NewEncoder().String(src)
	require.NoError(t, err)

	entries, err := ParseCSV([]byte(encoded))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Składka członkowska", entries[0].Description)
	assert.True(t, dec("60").Equal(entries[0].Amount))
}

func TestParseAmount(t *testing.T) {
	for in, want := range map[string]string{
		"120,00":      "120",
		"1 234,56 zł": "1234.56",
		"1.234,56":    "1234.56",
		"-15.5":       "-15.5",
		"+200,00 PLN": "200",
	} {
		got, ok := parseAmount(in)
		require.True(t, ok, in)
		assert.True(t, dec(want).Equal(got), "%s -> %s", in, got)
	}
	_, ok := parseAmount("brak")
	assert.False(t, ok)
}

func TestDetectFormat(t *testing.T) {
	f, err := DetectFormat("wyciag.STA", "")
	require.NoError(t, err)
	assert.Equal(t, FormatMT940, f)

	f, err = DetectFormat("export.csv", "auto")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = DetectFormat("export.txt", "mt940")
	require.NoError(t, err)
	assert.Equal(t, FormatMT940, f)

	_, err = DetectFormat("export.pdf", "")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestParseEmptyFile(t *testing.T) {
	_, _, err := Parse("empty.csv", "", []byte("Data;Kwota\n"))
	assert.ErrorIs(t, err, ErrNoTransactions)
}

func matcherFixture() *Matcher {
	members := []Candidate{
		{ID: 1, MemberNumber: "12", FirstName: "Jan", LastName: "Kowalski"},
		{ID: 2, FirstName: "Anna", LastName: "Nowak"},
		{ID: 3, FirstName: "Piotr", LastName: "Nowak"},
		{ID: 4, FirstName: "Ewa", LastName: "Wiśniewska"},
	}
	fees := []OpenFee{
		{ID: 10, MemberID: 4, Amount: dec("120"), DueDate: time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), FeeTypeName: "Składka roczna"},
		{ID: 11, MemberID: 4, Amount: dec("120"), DueDate: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), FeeTypeName: "Składka roczna"},
		{ID: 12, MemberID: 2, Amount: dec("60"), DueDate: time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), FeeTypeName: "Składka ulgowa"},
	}
	return NewMatcher(DefaultMatchConfig(), members, fees)
}

func TestMatcher(t *testing.T) {
	m := matcherFixture()
	cases := []struct {
		name   string
		text   string
		amount string
		member uint64
		level  Level
		fee    uint64
		auto   bool
	}{
		{"member number", "Składka nr 12", "50", 1, LevelHigh, 0, true},
		{"unique last name", "wpłata Kowalski", "50", 1, LevelMedium, 0, true},
		{"last name with fee amount", "składka Nowak Anna", "60", 2, LevelHigh, 12, true},
		{"first name among namesakes", "Nowak Piotr", "10", 3, LevelMedium, 0, true},
		{"ambiguous last name", "Nowak", "10", 2, LevelLow, 0, false},
		{"amount only", "przelew", "60", 2, LevelLow, 12, false},
		{"oldest fee first", "Wiśniewska", "120", 4, LevelHigh, 11, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, ok := m.Match(Entry{Description: tc.text, Amount: dec(tc.amount)})
			require.True(t, ok)
			assert.Equal(t, tc.member, s.MemberID)
			assert.Equal(t, tc.level, s.Level)
			assert.Equal(t, tc.auto, m.Auto(s))
			if tc.fee == 0 {
				assert.Nil(t, s.FeeID)
			} else {
				require.NotNil(t, s.FeeID)
				assert.Equal(t, tc.fee, *s.FeeID)
			}
		})
	}
}

func TestMatcherSkips(t *testing.T) {
	m := matcherFixture()
	_, ok := m.Match(Entry{Description: "Kowalski", Amount: dec("-50")})
	assert.False(t, ok, "expenses are not matched")

	_, ok = m.Match(Entry{Description: "przelew", Amount: dec("120")})
	assert.False(t, ok, "amount shared by two fees is ambiguous")
}

func TestRank(t *testing.T) {
	members := []Candidate{
		{ID: 1, MemberNumber: "12", FirstName: "Jan", LastName: "Kowalski"},
		{ID: 2, FirstName: "Anna", LastName: "Nowak"},
	}
	got := Rank("Składka nr 12 Kowalski", "", members)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(1), got[0].MemberID)
	assert.Equal(t, 150, got[0].Score)
	assert.Equal(t, []string{"member_number", "last_name"}, got[0].Reasons)
}
