//go:build e2e

// End-to-end tests against a running marketbase server.
//
// Start the stack first:
//
//	docker compose up -d postgres
//	go run ./cmd/server migrate
//	go run ./cmd/server
//
// then run:
//
//	go test -tags e2e ./tests/e2e/...
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketbase/marketbase/internal/audit"
	"github.com/marketbase/marketbase/internal/bootstrap"
	"github.com/marketbase/marketbase/internal/directory"
	"github.com/marketbase/marketbase/internal/provider"
)

var baseURL = getEnv("MARKETBASE_API_URL", "http://127.0.0.1:8080")

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

type TestClient struct {
	httpClient *http.Client
	bearer     string
}

func NewTestClient() *TestClient {
	return &TestClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *TestClient) Do(method, path string, body any) (*http.Response, map[string]json.RawMessage, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, _ := http.NewRequest(method, baseURL+path, bodyReader)
	req.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	decoded := make(map[string]json.RawMessage)
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded, nil
}

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d@e2e.example.com", prefix, time.Now().UnixNano())
}

func TestHealthCheck(t *testing.T) {
	client := NewTestClient()
	resp, _, err := client.Do(http.MethodGet, "/health", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthFlow(t *testing.T) {
	client := NewTestClient()
	email := uniqueEmail("authflow")

	// Sign up.
	resp, body, err := client.Do(http.MethodPost, "/auth/v1/signup", map[string]string{
		"email":    email,
		"password": "E2ePassword123",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	if string(body["session"]) == "null" {
		t.Skip("server requires email confirmation; password grant not reachable")
	}

	// Password grant.
	resp, body, err = client.Do(http.MethodPost, "/auth/v1/token?grant_type=password", map[string]string{
		"email":    email,
		"password": "E2ePassword123",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var access, refresh string
	require.NoError(t, json.Unmarshal(body["access_token"], &access))
	require.NoError(t, json.Unmarshal(body["refresh_token"], &refresh))
	client.bearer = access

	// The bearer token identifies the account.
	resp, body, err = client.Do(http.MethodGet, "/auth/v1/user", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body["email"]), email)

	// Refresh rotation.
	resp, body, err = client.Do(http.MethodPost, "/auth/v1/token?grant_type=refresh_token", map[string]string{
		"refresh_token": refresh,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rotated string
	require.NoError(t, json.Unmarshal(body["refresh_token"], &rotated))
	assert.NotEqual(t, refresh, rotated)

	// The pre-rotation token is no longer accepted.
	resp, _, err = client.Do(http.MethodPost, "/auth/v1/token?grant_type=refresh_token", map[string]string{
		"refresh_token": refresh,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Logout revokes everything.
	resp, _, err = client.Do(http.MethodPost, "/auth/v1/logout", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _, err = client.Do(http.MethodPost, "/auth/v1/token?grant_type=refresh_token", map[string]string{
		"refresh_token": rotated,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWrongCredentialsRejected(t *testing.T) {
	client := NewTestClient()
	email := uniqueEmail("badcreds")

	resp, _, err := client.Do(http.MethodPost, "/auth/v1/signup", map[string]string{
		"email":    email,
		"password": "E2ePassword123",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _, err = client.Do(http.MethodPost, "/auth/v1/token?grant_type=password", map[string]string{
		"email":    email,
		"password": "not-the-password",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// TestSessionBootstrap runs the full client-side loop: provider sign-in,
// profile and tenant resolution, ready state. It needs the seeded admin
// account because only provisioned accounts have a directory profile.
func TestSessionBootstrap(t *testing.T) {
	adminEmail := os.Getenv("MB_SEED_ADMIN_EMAIL")
	adminPassword := os.Getenv("MB_SEED_ADMIN_PASSWORD")
	if adminEmail == "" || adminPassword == "" {
		t.Skip("MB_SEED_ADMIN_EMAIL / MB_SEED_ADMIN_PASSWORD not set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := provider.NewAPI(baseURL)
	defer api.Close()
	dir := directory.NewClient(baseURL, api.AccessToken)

	b := bootstrap.New(api, dir, audit.NewSlogLogger(), bootstrap.Config{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run(ctx)
	}()

	require.NoError(t, b.SignIn(ctx, adminEmail, adminPassword))

	deadline := time.Now().Add(35 * time.Second)
	for {
		st := b.State()
		if st.Status == bootstrap.StatusReady {
			require.NotNil(t, st.Profile)
			require.NotNil(t, st.Tenant)
			assert.Equal(t, st.Profile.TenantID, st.Tenant.ID)
			assert.True(t, st.Profile.Role.Valid())
			break
		}
		if st.Status == bootstrap.StatusError {
			t.Fatalf("bootstrap failed: %s (%s)", st.Err.Message, st.Err.Class)
		}
		if time.Now().After(deadline) {
			t.Fatalf("bootstrap did not settle, status %q", st.Status)
		}
		time.Sleep(100 * time.Millisecond)
	}

	require.NoError(t, b.SignOut(ctx))
	assert.Equal(t, bootstrap.StatusAnonymous, b.State().Status)

	cancel()
	<-done
}
