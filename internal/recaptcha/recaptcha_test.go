package recaptcha

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smallbiznis/patronage/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClientVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "secret", r.PostForm.Get("secret"))
		assert.Equal(t, "tok", r.PostForm.Get("response"))
		assert.Equal(t, "10.0.0.1", r.PostForm.Get("remoteip"))
		_, _ = w.Write([]byte(`{"success":true,"score":0.9}`))
	}))
	defer srv.Close()

	resp, err := NewClient("secret", srv.URL, srv.Client()).Verify(context.Background(), "tok", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, 0.9, resp["score"])
}

func TestClientVerifyHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient("secret", srv.URL, srv.Client()).Verify(context.Background(), "tok", "")
	assert.Error(t, err)
}

func TestNewFromConfigDisabledInTests(t *testing.T) {
	v := NewFromConfig(config.Config{Environment: config.EnvCI, RecaptchaSecret: "secret"}, zap.NewNop())
	_, ok := v.(NoOpVerifier)
	assert.True(t, ok)
}
