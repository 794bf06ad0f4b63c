package netx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verifyResp struct {
	Success bool   `json:"success"`
	Host    string `json:"hostname"`
}

func TestPostForm(t *testing.T) {
	t.Run("success decodes json", func(t *testing.T) {
		var gotCT, gotMethod, gotSecret string

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotCT = r.Header.Get("Content-Type")
			_ = r.ParseForm()
			gotSecret = r.PostForm.Get("secret")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"success":true,"hostname":"example.org"}`))
		}))
		defer ts.Close()

		var out verifyResp
		err := PostForm(context.Background(), ts.Client(), ts.URL, url.Values{"secret": {"s3"}}, &out)
		require.NoError(t, err)

		assert.Equal(t, http.MethodPost, gotMethod)
		assert.Equal(t, "application/x-www-form-urlencoded", gotCT)
		assert.Equal(t, "s3", gotSecret)
		assert.True(t, out.Success)
		assert.Equal(t, "example.org", out.Host)
	})

	t.Run("non-2xx -> error with body", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		}))
		defer ts.Close()

		err := PostForm(context.Background(), nil, ts.URL, url.Values{}, nil)
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "502"))
		assert.True(t, strings.Contains(err.Error(), "upstream down"))
	})

	t.Run("bad json -> decode error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{not json"))
		}))
		defer ts.Close()

		var out verifyResp
		err := PostForm(context.Background(), nil, ts.URL, url.Values{}, &out)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode response")
	})

	t.Run("context deadline", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer ts.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := PostForm(ctx, nil, ts.URL, url.Values{}, nil)
		require.Error(t, err)
	})

	t.Run("bad url", func(t *testing.T) {
		err := PostForm(context.Background(), nil, "://bad", url.Values{}, nil)
		require.Error(t, err)
	})
}
