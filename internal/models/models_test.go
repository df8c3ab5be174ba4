package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPendingErasureExpiry(t *testing.T) {
	created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p := &PendingErasure{RequesterID: "1", ConversationID: "c", CreatedAt: created}

	assert.False(t, p.Expired(created.Add(29*time.Second), 30*time.Second))
	assert.True(t, p.Expired(created.Add(30*time.Second), 30*time.Second))
	assert.Equal(t, created.Add(30*time.Second), p.ExpiresAt(30*time.Second))
}

func TestEraseStats(t *testing.T) {
	var s EraseStats
	s.Add("messages", 5)
	s.Add("jargon", 0)
	s.Add("person_info", 2)

	assert.Equal(t, int64(7), s.Total())
	assert.Equal(t, int64(5), s.Get("messages"))
	assert.Equal(t, int64(0), s.Get("group_info"))
	assert.Equal(t, "- all chat messages: 5\n- learned jargon: 0\n- all person profiles: 2", s.Lines(LangEnglish))
}

func TestGetTranslationFallbacks(t *testing.T) {
	assert.Equal(t, Translations[LangSimplifiedChinese]["nothing_all"], GetTranslation("fr", "nothing_all"))
	assert.Equal(t, "no_such_key", GetTranslation(LangEnglish, "no_such_key"))
	assert.Equal(t, "✅ Cleared messages older than 48 hours\n\nRemoved 3 records", Tf(LangEnglish, "cleared_before", 48, 3))
}

func TestTranslationsHaveSameKeys(t *testing.T) {
	for key := range Translations[LangSimplifiedChinese] {
		_, ok := Translations[LangEnglish][key]
		assert.True(t, ok, "missing english translation for %s", key)
	}
}

func TestUnixSeconds(t *testing.T) {
	ts := time.Unix(1700000000, 500_000_000)
	assert.InDelta(t, 1700000000.5, UnixSeconds(ts), 1e-6)
}
