// internal/provider/push_test.go
package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"notification-engine/internal/common/errors"
	commonhttp "notification-engine/internal/common/http"
	"notification-engine/internal/models"
)

const testDeviceToken = "fcm-token-0123456789abcdef"

func TestPushProvider_Validate(t *testing.T) {
	p := NewPushProvider(commonhttp.NewClient(time.Second), "http://gateway", "key", testLogger)

	valid := testNotification(models.ChannelPush, testDeviceToken)
	assert.NoError(t, p.Validate(valid))

	shortToken := testNotification(models.ChannelPush, "abc")
	assert.True(t, errors.HasCode(p.Validate(shortToken), errors.ErrCodeValidation))

	empty := testNotification(models.ChannelPush, testDeviceToken)
	empty.Content = ""
	assert.Error(t, p.Validate(empty))
}

func TestPushProvider_Send_Success(t *testing.T) {
	var captured pushRequest
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messageId":"push-msg-1"}`))
	}))
	defer server.Close()

	p := NewPushProvider(commonhttp.NewClient(time.Second), server.URL, "secret-key", testLogger)

	n := testNotification(models.ChannelPush, testDeviceToken)
	n.Metadata = map[string]interface{}{"deepLink": "/orders/42"}

	result, err := p.Send(context.Background(), n)
	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "push-msg-1", result.ExternalID)

	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, testDeviceToken, captured.DeviceToken)
	assert.Equal(t, "Welcome", captured.Title)
	assert.Equal(t, "Hello there", captured.Body)
	assert.Equal(t, "/orders/42", captured.Data["deepLink"])
}

func TestPushProvider_Send_GatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusBadRequest)
	}))
	defer server.Close()

	p := NewPushProvider(commonhttp.NewClient(time.Second), server.URL, "key", testLogger)

	result, err := p.Send(context.Background(), testNotification(models.ChannelPush, testDeviceToken))
	assert.Nil(t, result)
	assert.True(t, errors.HasCode(err, errors.ErrCodeProviderSend))
	assert.Contains(t, err.Error(), "400")
}

func TestPushProvider_Send_Unreachable(t *testing.T) {
	p := NewPushProvider(commonhttp.NewClient(100*time.Millisecond), "http://127.0.0.1:1", "key", testLogger)

	result, err := p.Send(context.Background(), testNotification(models.ChannelPush, testDeviceToken))
	assert.Nil(t, result)
	assert.True(t, errors.IsRetryable(err))
}
