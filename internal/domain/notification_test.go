package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_LegalEdges(t *testing.T) {
	legal := []struct{ from, to Status }{
		{StatusDraft, StatusScheduled},
		{StatusDraft, StatusSending},
		{StatusScheduled, StatusSending},
		{StatusScheduled, StatusExpired},
		{StatusSending, StatusSent},
		{StatusSending, StatusFailed},
		{StatusSent, StatusDelivered},
		{StatusDelivered, StatusRead},
	}
	for _, e := range legal {
		assert.True(t, CanTransition(e.from, e.to), "%s -> %s should be legal", e.from, e.to)
	}
}

func TestCanTransition_IllegalEdges(t *testing.T) {
	illegal := []struct{ from, to Status }{
		{StatusFailed, StatusSent},
		{StatusFailed, StatusSending},
		{StatusSent, StatusFailed},
		{StatusExpired, StatusSending},
		{StatusRead, StatusDelivered},
		{StatusDraft, StatusSent},
		{StatusDraft, StatusExpired},
		{StatusSending, StatusSending},
		{StatusSent, StatusRead},
	}
	for _, e := range illegal {
		assert.False(t, CanTransition(e.from, e.to), "%s -> %s should be illegal", e.from, e.to)
	}
}

func TestRecipientIDs(t *testing.T) {
	single := &Notification{UserID: "u1"}
	assert.Equal(t, []string{"u1"}, single.RecipientIDs())

	batch := &Notification{UserID: "", Recipients: []string{"u1", "u2"}}
	assert.Equal(t, []string{"u1", "u2"}, batch.RecipientIDs())

	empty := &Notification{}
	assert.Nil(t, empty.RecipientIDs())
}

func TestExpiredBy(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, (&Notification{}).ExpiredBy(now))
	assert.True(t, (&Notification{ExpiresAt: &past}).ExpiredBy(now))
	assert.False(t, (&Notification{ExpiresAt: &future}).ExpiredBy(now))
	// Boundary: expires exactly at now counts as expired.
	assert.True(t, (&Notification{ExpiresAt: &now}).ExpiredBy(now))
}

func TestAllowsCategory_Defaults(t *testing.T) {
	tok := &DeviceToken{}
	assert.True(t, tok.AllowsCategory(CategoryOrder))

	tok.CategoryPrefs = map[Category]bool{CategoryPromotion: false}
	assert.False(t, tok.AllowsCategory(CategoryPromotion))
	assert.True(t, tok.AllowsCategory(CategoryOrder))
}
