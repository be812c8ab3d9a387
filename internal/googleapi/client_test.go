package googleapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/voice-widget/internal/resilience"
)

type echoBody struct {
	Text string `json:"text"`
}

func TestPostJSON_SendsKeyAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in echoBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(echoBody{Text: "echo: " + in.Text})
	}))
	defer srv.Close()

	c := NewClient("speech", "secret", srv.Client())

	var out echoBody
	err := c.PostJSON(context.Background(), srv.URL+"/v1/speech:recognize", echoBody{Text: "hi"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", out.Text)
}

func TestPostJSON_KeepsExistingQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "v", r.URL.Query().Get("alt"))
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient("gemini", "secret", srv.Client())

	var out echoBody
	require.NoError(t, c.PostJSON(context.Background(), srv.URL+"/x?alt=v", echoBody{}, &out))
}

func TestPostJSON_APIErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"bad encoding","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	c := NewClient("speech", "secret", srv.Client())

	var out echoBody
	err := c.PostJSON(context.Background(), srv.URL, echoBody{}, &out)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "INVALID_ARGUMENT", apiErr.Status)
	assert.Equal(t, "bad encoding", apiErr.Message)
	assert.Contains(t, apiErr.Body, "bad encoding")
	assert.False(t, resilience.IsRetryable(err))
}

func TestPostJSON_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("oops"))
	}))
	defer srv.Close()

	c := NewClient("gemini", "secret", srv.Client())

	var out echoBody
	err := c.PostJSON(context.Background(), srv.URL, echoBody{}, &out)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "oops", apiErr.Body)
	assert.True(t, resilience.IsRetryable(err))
}

func TestPostJSON_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not-json"))
	}))
	defer srv.Close()

	c := NewClient("gemini", "secret", srv.Client())

	var out echoBody
	assert.Error(t, c.PostJSON(context.Background(), srv.URL, echoBody{}, &out))
}

func TestPostJSON_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	c := NewClient("speech", "secret", nil)

	var out echoBody
	err := c.PostJSON(context.Background(), endpoint, echoBody{}, &out)
	require.Error(t, err)
	assert.True(t, resilience.IsRetryableNetworkError(err))
}
