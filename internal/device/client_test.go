package device

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewTLSServer(handler)
	t.Cleanup(server.Close)

	parsed, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(parsed.Port())
	require.NoError(t, err)

	return NewClient(Config{
		Host:               parsed.Hostname(),
		Port:               port,
		Username:           "admin",
		Password:           "secret",
		InsecureSkipVerify: true,
	}, zap.NewNop())
}

func loginAware(t *testing.T, next http.HandlerFunc) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == loginPath {
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "admin", body["username"])
			_ = json.NewEncoder(w).Encode(map[string]any{
				"token": map[string]any{"token": "test-token"},
			})
			return
		}
		assert.Equal(t, "test-token", r.Header.Get(authTokenHeader))
		next(w, r)
	}
}

func TestClientListAddsManagementPrefix(t *testing.T) {
	client := newTestClient(t, loginAware(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mgmt/tm/sys/dns", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"nameServers": []any{"1.2.3.4"}})
	}))

	result, err := client.List(context.Background(), "/tm/sys/dns", nil)
	require.NoError(t, err)
	obj := result.(map[string]any)
	assert.Equal(t, []any{"1.2.3.4"}, obj["nameServers"])
}

func TestClientListNotFound(t *testing.T) {
	client := newTestClient(t, loginAware(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.List(context.Background(), "/tm/net/vlan/~Common~missing", nil)
	assert.True(t, IsNotFound(err))
}

func TestClientListRetries(t *testing.T) {
	calls := 0
	client := newTestClient(t, loginAware(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))

	result, err := client.List(context.Background(), "/tm/sys/ntp", &RequestOptions{
		Retry: RetryPolicy{Tries: 3, Interval: time.Millisecond},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, true, result.(map[string]any)["ok"])
}

func TestClientListSurfacesQueryError(t *testing.T) {
	client := newTestClient(t, loginAware(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))

	_, err := client.List(context.Background(), "/tm/sys/ntp", nil)
	var queryErr *QueryError
	require.ErrorAs(t, err, &queryErr)
	assert.Equal(t, http.StatusInternalServerError, queryErr.StatusCode)
	assert.Contains(t, queryErr.Error(), "boom")
}

func TestClientReplaysAfterTokenExpiry(t *testing.T) {
	logins := 0
	var handler http.HandlerFunc
	handler = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == loginPath {
			logins++
			_ = json.NewEncoder(w).Encode(map[string]any{
				"token": map[string]any{"token": "token-" + strconv.Itoa(logins)},
			})
			return
		}
		if r.Header.Get(authTokenHeader) != "token-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
	client := newTestClient(t, handler)

	result, err := client.List(context.Background(), "/tm/sys/dns", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, logins)
	assert.Equal(t, true, result.(map[string]any)["ok"])
}

func TestClientConcurrentTokenRefresh(t *testing.T) {
	var mu sync.Mutex
	logins := 0
	validToken := ""
	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == loginPath {
			mu.Lock()
			logins++
			validToken = "token-" + strconv.Itoa(logins)
			token := validToken
			mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]any{
				"token": map[string]any{"token": token},
			})
			return
		}
		mu.Lock()
		ok := r.Header.Get(authTokenHeader) == validToken
		mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
	client := newTestClient(t, http.HandlerFunc(handler))

	require.NoError(t, client.Login(context.Background()))

	// Expire the session under the client's feet.
	mu.Lock()
	validToken = "rotated-away"
	mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.List(context.Background(), "/tm/sys/dns", nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "request %d", i)
	}

	// One login up front plus a single shared refresh.
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, logins)
}

func TestClientTransaction(t *testing.T) {
	var staged []string
	committed := false
	client := newTestClient(t, loginAware(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == transactionPath && r.Method == http.MethodPost:
			_ = json.NewEncoder(w).Encode(map[string]any{"transId": 1234})
		case strings.HasPrefix(r.URL.Path, transactionPath+"/") && r.Method == http.MethodPatch:
			committed = true
			_ = json.NewEncoder(w).Encode(map[string]any{"state": "COMPLETED"})
		default:
			assert.Equal(t, "1234", r.Header.Get(coordinationHeader))
			staged = append(staged, r.URL.Path)
			_ = json.NewEncoder(w).Encode(map[string]any{})
		}
	}))

	_, err := client.Transaction(context.Background(), []Operation{
		{Method: http.MethodPost, Path: "/tm/net/vlan", Body: map[string]any{"name": "external"}},
		{Method: http.MethodPost, Path: "/tm/net/self", Body: map[string]any{"name": "external-self"}},
	})
	require.NoError(t, err)
	assert.True(t, committed)
	assert.Equal(t, []string{"/mgmt/tm/net/vlan", "/mgmt/tm/net/self"}, staged)
}

func TestFetchInfo(t *testing.T) {
	client := newTestClient(t, loginAware(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, mgmtPrefix+deviceInfoPath, r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"machineId": "uuid-1234",
			"version":   "15.1.0",
			"hostname":  "bigip.example.com",
			"platform":  "Z100",
		})
	}))

	info, err := FetchInfo(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, "uuid-1234", info.MachineID)
	assert.Equal(t, "15.1.0", info.Version)
	assert.Equal(t, "bigip.example.com", info.Hostname)
}
