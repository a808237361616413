package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestLang(t *testing.T) {
	assert.Equal(t, language.Polish, Lang(""))
	assert.Equal(t, language.Polish, Lang("pl-PL,pl;q=0.9"))
	assert.Equal(t, language.English, Lang("en-US,en;q=0.9"))
	assert.Equal(t, language.English, Lang("de;q=0.9,en;q=0.5"))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "Brak wolnych miejsc", Localize("", "event_full"))
	assert.Equal(t, "No free places", Localize("en", "event_full"))
	assert.Equal(t, "something_new", Localize("en", "something_new"))
}

func TestCataloguesHaveSameKeys(t *testing.T) {
	for k := range polish {
		_, ok := english[k]
		assert.True(t, ok, "missing english message for %s", k)
	}
	assert.Len(t, english, len(polish))
}
