package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HanTheDev/llm-fusion-gateway/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSendsChatRequest(t *testing.T) {
	var got chatRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Rolling on the motorway helps."}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{Name: "provider_a", URL: srv.URL, APIKey: "k-123", Model: "m-1"})
	out, err := c.Generate(context.Background(), "my DPF is clogged", Options{System: "Be brief.", MaxTokens: 200})
	require.NoError(t, err)

	assert.Equal(t, "Rolling on the motorway helps.", out)
	assert.Equal(t, "Bearer k-123", auth)
	assert.Equal(t, "m-1", got.Model)
	assert.Equal(t, 200, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "my DPF is clogged", got.Messages[1].Content)
	assert.Equal(t, "provider_a", c.Name())
}

func TestExtractContentShapes(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"choices":[{"message":{"content":"chat"}}]}`, "chat"},
		{`{"choices":[{"text":"completion"}]}`, "completion"},
		{`{"content":"flat"}`, "flat"},
		{`{"response":"ollama"}`, "ollama"},
		{`{"choices":[]}`, ""},
		{`not json`, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractContent([]byte(tt.body)), tt.body)
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   models.ErrorKind
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, models.ErrorRateLimited},
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad key"}`, models.ErrorAuth},
		{"gateway timeout", http.StatusGatewayTimeout, ``, models.ErrorTimeout},
		{"bad gateway", http.StatusBadGateway, ``, models.ErrorNetwork},
		{"server error", http.StatusInternalServerError, `oops`, models.ErrorUnknown},
		{"empty content", http.StatusOK, `{"choices":[{"message":{"content":"  "}}]}`, models.ErrorUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(Config{Name: "p", URL: srv.URL}).Generate(context.Background(), "q", Options{})
			require.Error(t, err)
			assert.Equal(t, tt.want, Classify(err))
		})
	}
}

func TestGenerateStatusErrorCarriesCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient(Config{Name: "p", URL: srv.URL}).Generate(context.Background(), "q", Options{})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.Code)
	assert.Equal(t, "nope", se.Body)
}

func TestGenerateHonorsDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewClient(Config{Name: "p", URL: srv.URL}).Generate(ctx, "q", Options{})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, models.ErrorTimeout, Classify(err))
}

func TestGenerateUnreachableHostIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(Config{Name: "p", URL: url}).Generate(context.Background(), "q", Options{})
	require.Error(t, err)
	assert.Equal(t, models.ErrorNetwork, Classify(err))
}

type fixedBudget struct {
	allow bool
	err   error
}

func (b fixedBudget) Allow(context.Context) (bool, error) { return b.allow, b.err }

func TestGenerateRespectsSharedBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"content":"ok"}`))
	}))
	defer srv.Close()

	_, err := NewClient(Config{Name: "p", URL: srv.URL, Budget: fixedBudget{allow: false}}).Generate(context.Background(), "q", Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLocalRateLimit)
	assert.Equal(t, models.ErrorRateLimited, Classify(err))
	assert.Zero(t, calls.Load())

	out, err := NewClient(Config{Name: "p", URL: srv.URL, Budget: fixedBudget{err: errors.New("redis down")}}).Generate(context.Background(), "q", Options{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestGenerateLocalLimiterWaitsWithinDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{Name: "p", URL: srv.URL, RequestsPerSecond: 0.1, Burst: 1})
	_, err := c.Generate(context.Background(), "q", Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Generate(ctx, "q", Options{})
	require.Error(t, err)
	assert.Equal(t, models.ErrorRateLimited, Classify(err))
}

func TestClassifyContextErrors(t *testing.T) {
	assert.Equal(t, models.ErrorNone, Classify(nil))
	assert.Equal(t, models.ErrorTimeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, models.ErrorUnknown, Classify(context.Canceled))
}
