// internal/provider/inapp_test.go
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-engine/internal/common/errors"
	"notification-engine/internal/models"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestInAppProvider_Validate(t *testing.T) {
	_, client := newTestRedis(t)
	p := NewInAppProvider(client, 0, 100, testLogger)

	valid := testNotification(models.ChannelInApp, "")
	assert.NoError(t, p.Validate(valid))

	noRecipient := testNotification(models.ChannelInApp, "")
	noRecipient.RecipientID = ""
	assert.True(t, errors.HasCode(p.Validate(noRecipient), errors.ErrCodeValidation))

	empty := testNotification(models.ChannelInApp, "")
	empty.Content = ""
	assert.Error(t, p.Validate(empty))
}

func TestInAppProvider_Send_WritesInbox(t *testing.T) {
	mr, client := newTestRedis(t)
	p := NewInAppProvider(client, time.Hour, 100, testLogger)

	n := testNotification(models.ChannelInApp, "")
	result, err := p.Send(context.Background(), n)
	assert.NoError(t, err)
	assert.True(t, result.Success)

	key := InboxKey("acme", "u1")
	entries, err := mr.List(key)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var entry inboxEntry
	require.NoError(t, json.Unmarshal([]byte(entries[0]), &entry))
	assert.Equal(t, n.ID.String(), entry.NotificationID)
	assert.Equal(t, "Welcome", entry.Subject)
	assert.Equal(t, "Hello there", entry.Content)

	ttl := mr.TTL(key)
	assert.InDelta(t, time.Hour, ttl, float64(time.Minute))
}

func TestInAppProvider_Send_NewestFirstAndCapped(t *testing.T) {
	mr, client := newTestRedis(t)
	p := NewInAppProvider(client, 0, 3, testLogger)

	var lastID string
	for i := 0; i < 5; i++ {
		n := testNotification(models.ChannelInApp, "")
		n.Content = fmt.Sprintf("message %d", i)
		lastID = n.ID.String()
		_, err := p.Send(context.Background(), n)
		require.NoError(t, err)
	}

	entries, err := mr.List(InboxKey("acme", "u1"))
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	var newest inboxEntry
	require.NoError(t, json.Unmarshal([]byte(entries[0]), &newest))
	assert.Equal(t, lastID, newest.NotificationID)
	assert.Equal(t, "message 4", newest.Content)
}

func TestInAppProvider_Send_TenantScopedKeys(t *testing.T) {
	mr, client := newTestRedis(t)
	p := NewInAppProvider(client, 0, 100, testLogger)

	a := testNotification(models.ChannelInApp, "")
	b := testNotification(models.ChannelInApp, "")
	b.TenantID = "globex"

	_, err := p.Send(context.Background(), a)
	require.NoError(t, err)
	_, err = p.Send(context.Background(), b)
	require.NoError(t, err)

	acme, _ := mr.List(InboxKey("acme", "u1"))
	globex, _ := mr.List(InboxKey("globex", "u1"))
	assert.Len(t, acme, 1)
	assert.Len(t, globex, 1)
}
