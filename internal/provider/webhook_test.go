// internal/provider/webhook_test.go
package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"notification-engine/internal/common/errors"
	commonhttp "notification-engine/internal/common/http"
	"notification-engine/internal/models"
)

func TestWebhookProvider_Validate(t *testing.T) {
	p := NewWebhookProvider(commonhttp.NewClient(time.Second), "secret", testLogger)

	valid := testNotification(models.ChannelWebhook, "https://hooks.example.com/notify")
	assert.NoError(t, p.Validate(valid))

	badURL := testNotification(models.ChannelWebhook, "ftp://example.com")
	assert.True(t, errors.HasCode(p.Validate(badURL), errors.ErrCodeValidation))

	empty := testNotification(models.ChannelWebhook, "https://hooks.example.com/notify")
	empty.Content = ""
	assert.Error(t, p.Validate(empty))
}

func TestWebhookProvider_Send_SignsPayload(t *testing.T) {
	const secret = "whsec_test"

	var gotSignature, gotTimestamp string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Webhook-Signature")
		gotTimestamp = r.Header.Get("X-Webhook-Timestamp")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := NewWebhookProvider(commonhttp.NewClient(time.Second), secret, testLogger)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	n := testNotification(models.ChannelWebhook, server.URL)
	result, err := p.Send(context.Background(), n)
	assert.NoError(t, err)
	assert.True(t, result.Success)

	// Receiver-side verification of the Stripe-style signature scheme.
	assert.Equal(t, strconv.FormatInt(fixed.Unix(), 10), gotTimestamp)
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s.%s", gotTimestamp, gotBody)
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), gotSignature)

	var payload webhookPayload
	assert.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, n.ID.String(), payload.NotificationID)
	assert.Equal(t, "acme", payload.TenantID)
	assert.Equal(t, "Hello there", payload.Content)
}

func TestWebhookProvider_Send_NoSecretSkipsSignature(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("X-Webhook-Signature"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	p := NewWebhookProvider(commonhttp.NewClient(time.Second), "", testLogger)

	_, err := p.Send(context.Background(), testNotification(models.ChannelWebhook, server.URL))
	assert.NoError(t, err)
}

func TestWebhookProvider_Send_EndpointError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := NewWebhookProvider(commonhttp.NewClient(time.Second), "secret", testLogger)

	result, err := p.Send(context.Background(), testNotification(models.ChannelWebhook, server.URL))
	assert.Nil(t, result)
	assert.True(t, errors.HasCode(err, errors.ErrCodeProviderSend))
	assert.Contains(t, err.Error(), "503")
}
