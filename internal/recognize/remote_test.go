package recognize

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteProvider_Recognize(t *testing.T) {
	image := []byte("fake image bytes")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		decoded, err := base64.StdEncoding.DecodeString(req["image"])
		require.NoError(t, err)
		assert.Equal(t, image, decoded)

		w.Write([]byte(`{"sender": "Karoo Lamb Farm", "truckReg": "ABC 123 GP", "raw_text": "DELIVERY NOTE"}`))
	}))
	defer server.Close()

	p := NewRemoteProvider(server.URL, "test-key")

	raw, err := p.Recognize(context.Background(), image)
	require.NoError(t, err)

	assert.Equal(t, "Karoo Lamb Farm", raw.Fields["sender"])
	assert.Equal(t, "ABC 123 GP", raw.Fields["truckReg"])
	assert.Equal(t, "DELIVERY NOTE", raw.Text)
}

func TestRemoteProvider_NoAuthHeaderWithoutKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"truckReg": "ABC 123 GP"}`))
	}))
	defer server.Close()

	p := NewRemoteProvider(server.URL, "")

	_, err := p.Recognize(context.Background(), []byte("img"))
	require.NoError(t, err)
}

func TestRemoteProvider_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := NewRemoteProvider(server.URL, "")

	_, err := p.Recognize(context.Background(), []byte("img"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestRemoteProvider_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway error</html>"))
	}))
	defer server.Close()

	p := NewRemoteProvider(server.URL, "")

	_, err := p.Recognize(context.Background(), []byte("img"))
	assert.ErrorIs(t, err, ErrMalformedBody)
}

func TestRemoteProvider_ContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	p := NewRemoteProvider(server.URL, "")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Recognize(ctx, []byte("img"))
	assert.Error(t, err)
}

func TestRemoteProvider_Name(t *testing.T) {
	assert.Equal(t, "remote", NewRemoteProvider("http://x", "").Name())
}
