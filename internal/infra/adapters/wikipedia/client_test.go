package wikipedia

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func newTestServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "research-assistant-test", 2*time.Second, newTestLogger())
}

func TestClient_Search(t *testing.T) {
	t.Run("returns opensearch titles", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			assert.Equal(t, "opensearch", q.Get("action"))
			assert.Equal(t, "Alan Turing", q.Get("search"))
			assert.Equal(t, "5", q.Get("limit"))
			assert.Equal(t, "0", q.Get("namespace"))
			assert.Equal(t, "research-assistant-test", r.Header.Get("User-Agent"))
			_, _ = io.WriteString(w, `["Alan Turing",["Alan Turing","Alan Turing Institute"],["",""],["u1","u2"]]`)
		})

		titles, err := c.Search(context.Background(), "Alan Turing", 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"Alan Turing", "Alan Turing Institute"}, titles)
	})

	t.Run("no matches is an empty list", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `["zzqx",[],[],[]]`)
		})
		titles, err := c.Search(context.Background(), "zzqx", 5)
		require.NoError(t, err)
		assert.NotNil(t, titles)
		assert.Empty(t, titles)
	})

	t.Run("server error is reported", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
		_, err := c.Search(context.Background(), "x", 5)
		assert.Error(t, err)
	})

	t.Run("malformed body is reported", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `<html>`)
		})
		_, err := c.Search(context.Background(), "x", 5)
		assert.Error(t, err)
	})
}

func TestClient_Summary(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			assert.Equal(t, "query", q.Get("action"))
			assert.Equal(t, "extracts", q.Get("prop"))
			assert.Equal(t, "5", q.Get("exsentences"))
			assert.Equal(t, "Enigma machine", q.Get("titles"))
			_, _ = io.WriteString(w, `{"query":{"pages":{"9256":{"pageid":9256,"title":"Enigma machine","extract":"The Enigma machine is a cipher device."}}}}`)
		})
		s, found, err := c.Summary(context.Background(), "Enigma machine")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "The Enigma machine is a cipher device.", s)
	})

	t.Run("missing page", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"query":{"pages":{"-1":{"ns":0,"title":"Nope","missing":""}}}}`)
		})
		s, found, err := c.Summary(context.Background(), "Nope")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, s)
	})

	t.Run("timeout surfaces as error", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		})
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, _, err := c.Summary(ctx, "Slow")
		assert.Error(t, err)
	})
}
