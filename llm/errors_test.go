package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func jsonEncode(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

func newJSONServer(t *testing.T, status int, body any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		if body != nil {
			if err := jsonEncode(w, body); err != nil {
				t.Errorf("encode response: %v", err)
			}
		}
	}))
}

func newCountingServer(t *testing.T, calls *atomic.Int64, status int, msg string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, msg, status)
	}))
}

func TestTransientError(t *testing.T) {
	base := errors.New("connection reset")
	err := NewTransientError(base)

	assert.True(t, IsTransient(err))
	assert.False(t, IsFatal(err))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "connection reset", err.Error())
}

func TestFatalError(t *testing.T) {
	base := errors.New("invalid api key")
	err := NewFatalError(base)

	assert.True(t, IsFatal(err))
	assert.False(t, IsTransient(err))
	assert.ErrorIs(t, err, base)
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("generate answer: %w", NewTransientError(errors.New("timeout")))
	assert.True(t, IsTransient(err))
}

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
	}

	for _, tt := range tests {
		err := classifyHTTPError(tt.status, []byte("body"))
		if tt.transient {
			assert.True(t, IsTransient(err), "status %d", tt.status)
		} else {
			assert.True(t, IsFatal(err), "status %d", tt.status)
		}
	}
}
