package indexing

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testAccount builds a service account with a freshly generated RSA key
// pointed at the given token endpoint
func testAccount(t *testing.T, tokenURI string) *ServiceAccount {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	raw, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"client_email":   "indexer@project.iam.gserviceaccount.com",
		"private_key_id": "key-1",
		"private_key":    string(keyPEM),
		"token_uri":      tokenURI,
	})
	require.NoError(t, err)

	account, err := ParseServiceAccount(raw)
	require.NoError(t, err)

	return account
}

func TestParseServiceAccount_MissingFields(t *testing.T) {
	tests := []struct {
		name      string
		payload   map[string]string
		errString string
	}{
		{
			name:      "missing client_email",
			payload:   map[string]string{"private_key": "x", "token_uri": "y"},
			errString: "missing client_email",
		},
		{
			name:      "missing private_key",
			payload:   map[string]string{"client_email": "x", "token_uri": "y"},
			errString: "missing private_key",
		},
		{
			name:      "missing token_uri",
			payload:   map[string]string{"client_email": "x", "private_key": "y"},
			errString: "missing token_uri",
		},
		{
			name: "private key is not PEM",
			payload: map[string]string{
				"client_email": "x",
				"private_key":  "not a key",
				"token_uri":    "y",
			},
			errString: "failed to parse service account private key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.payload)
			require.NoError(t, err)

			_, err = ParseServiceAccount(raw)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

// testAPI stands in for both the token endpoint and the publish endpoint
type testAPI struct {
	tokenCalls   int
	publishCalls int
	publishCode  int
	publishBody  string
	lastAuth     string
	lastPayload  map[string]string
}

func newTestAPI(publishCode int, publishBody string) *testAPI {
	return &testAPI{publishCode: publishCode, publishBody: publishBody}
}

func (a *testAPI) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			a.tokenCalls++
			if r.FormValue("grant_type") != oauthGrantType || r.FormValue("assertion") == "" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "test-token",
				"expires_in":   3600,
			})

		case "/publish":
			a.publishCalls++
			a.lastAuth = r.Header.Get("Authorization")
			json.NewDecoder(r.Body).Decode(&a.lastPayload)
			w.WriteHeader(a.publishCode)
			w.Write([]byte(a.publishBody))

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestClient_Publish(t *testing.T) {
	api := newTestAPI(http.StatusOK, `{}`)
	server := httptest.NewServer(api.handler())
	defer server.Close()

	account := testAccount(t, server.URL+"/token")
	client := NewClient(account, server.URL+"/publish", 5*time.Second, testLogger())

	err := client.Publish(context.Background(), "https://shop.example.com/products/widget")
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-token", api.lastAuth)
	assert.Equal(t, "https://shop.example.com/products/widget", api.lastPayload["url"])
	assert.Equal(t, NotificationTypeUpdated, api.lastPayload["type"])
}

func TestClient_PublishQuotaExceeded(t *testing.T) {
	api := newTestAPI(http.StatusTooManyRequests, `{"error":{"message":"Quota exceeded"}}`)
	server := httptest.NewServer(api.handler())
	defer server.Close()

	account := testAccount(t, server.URL+"/token")
	client := NewClient(account, server.URL+"/publish", 5*time.Second, testLogger())

	err := client.Publish(context.Background(), "https://shop.example.com/products/widget")
	require.Error(t, err)

	assert.True(t, IsQuotaExceeded(err))

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Code)
	assert.Contains(t, statusErr.Message, "Quota exceeded")
}

func TestClient_PublishServerError(t *testing.T) {
	api := newTestAPI(http.StatusInternalServerError, `boom`)
	server := httptest.NewServer(api.handler())
	defer server.Close()

	account := testAccount(t, server.URL+"/token")
	client := NewClient(account, server.URL+"/publish", 5*time.Second, testLogger())

	err := client.Publish(context.Background(), "https://shop.example.com/products/widget")
	require.Error(t, err)

	assert.False(t, IsQuotaExceeded(err))

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
}

func TestClient_TokenIsCached(t *testing.T) {
	api := newTestAPI(http.StatusOK, `{}`)
	server := httptest.NewServer(api.handler())
	defer server.Close()

	account := testAccount(t, server.URL+"/token")
	client := NewClient(account, server.URL+"/publish", 5*time.Second, testLogger())

	for i := 0; i < 3; i++ {
		require.NoError(t, client.Publish(context.Background(), "https://shop.example.com/products/widget"))
	}

	assert.Equal(t, 1, api.tokenCalls, "token must be exchanged once and reused")
	assert.Equal(t, 3, api.publishCalls)
}

func TestClient_TokenEndpointRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	account := testAccount(t, server.URL+"/token")
	client := NewClient(account, server.URL+"/publish", 5*time.Second, testLogger())

	err := client.Publish(context.Background(), "https://shop.example.com/products/widget")
	require.Error(t, err)

	// A quota rejection at the token exchange counts the same as one at
	// the publish call
	assert.True(t, IsQuotaExceeded(err))
}

func TestIsQuotaExceeded(t *testing.T) {
	assert.True(t, IsQuotaExceeded(&StatusError{Code: 429}))
	assert.False(t, IsQuotaExceeded(&StatusError{Code: 500}))
	assert.False(t, IsQuotaExceeded(nil))
	assert.False(t, IsQuotaExceeded(context.Canceled))
}
