package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseClient_DefaultTimeout(t *testing.T) {
	c := NewBaseClient("http://example.test")
	assert.Equal(t, 15*time.Second, c.client.Timeout)

	c.SetTimeout(2 * time.Second)
	assert.Equal(t, 2*time.Second, c.client.Timeout)
}

func TestMakeRequest_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	c := NewBaseClient(srv.URL)
	c.SetHeader("X-Test", "yes")

	_, err := c.Get(context.Background(), "/anything")
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, StatusCode(err))

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "slow down", statusErr.Body)
}
