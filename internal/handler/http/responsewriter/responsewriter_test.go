package responsewriter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_Defaults(t *testing.T) {
	rec := Wrap(httptest.NewRecorder())

	assert.Equal(t, http.StatusOK, rec.Status())
	assert.Zero(t, rec.Size())
	assert.False(t, rec.Written())
}

func TestWrap_ReusesRecorder(t *testing.T) {
	outer := Wrap(httptest.NewRecorder())
	inner := Wrap(outer)

	assert.Same(t, outer, inner)
}

func TestRecorder_WriteHeader(t *testing.T) {
	tests := []struct {
		name string
		code int
	}{
		{"accepted", http.StatusAccepted},
		{"conflict", http.StatusConflict},
		{"unavailable", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			underlying := httptest.NewRecorder()
			rec := Wrap(underlying)

			rec.WriteHeader(tt.code)

			assert.Equal(t, tt.code, rec.Status())
			assert.Equal(t, tt.code, underlying.Code)
			assert.True(t, rec.Written())
		})
	}
}

func TestRecorder_FirstHeaderWins(t *testing.T) {
	underlying := httptest.NewRecorder()
	rec := Wrap(underlying)

	rec.WriteHeader(http.StatusTooManyRequests)
	rec.WriteHeader(http.StatusOK)

	assert.Equal(t, http.StatusTooManyRequests, rec.Status())
	assert.Equal(t, http.StatusTooManyRequests, underlying.Code)
}

func TestRecorder_WriteCountsBytes(t *testing.T) {
	underlying := httptest.NewRecorder()
	rec := Wrap(underlying)

	n, err := rec.Write([]byte(`{"status":`))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	_, err = rec.Write([]byte(`"accepted"}`))
	require.NoError(t, err)

	assert.Equal(t, 21, rec.Size())
	assert.Equal(t, http.StatusOK, rec.Status())
	assert.Equal(t, `{"status":"accepted"}`, underlying.Body.String())
}

func TestRecorder_Flush(t *testing.T) {
	underlying := httptest.NewRecorder()
	rec := Wrap(underlying)

	rec.Flush()

	assert.True(t, underlying.Flushed)
	assert.True(t, rec.Written())
}

func TestRecorder_Unwrap(t *testing.T) {
	underlying := httptest.NewRecorder()
	rec := Wrap(underlying)

	assert.Same(t, underlying, rec.Unwrap())
	// ResponseController must reach the underlying flusher through Unwrap.
	require.NoError(t, http.NewResponseController(rec).Flush())
}
