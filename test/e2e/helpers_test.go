package e2e_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pkgtypes "github.com/turtacn/casemind/pkg/types/common"
)

const apiPrefix = "/api/v1"

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.baseURL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.httpClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) doGet(t *testing.T, path string) *http.Response {
	return e.do(t, http.MethodGet, path, nil)
}

func (e *testEnv) doPost(t *testing.T, path string, body interface{}) *http.Response {
	return e.do(t, http.MethodPost, path, body)
}

func (e *testEnv) doDelete(t *testing.T, path string) *http.Response {
	return e.do(t, http.MethodDelete, path, nil)
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", expected, resp.StatusCode, body)
	}
}

// decodeData unwraps the API envelope into T.
func decodeData[T any](t *testing.T, resp *http.Response) (T, *pkgtypes.APIResponse[T]) {
	t.Helper()
	var env pkgtypes.APIResponse[T]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env.Data, &env
}

func decodeJSON(resp *http.Response, target interface{}) error {
	return json.NewDecoder(resp.Body).Decode(target)
}

// waitForCondition polls fn until it reports true or timeout elapses.
func waitForCondition(t *testing.T, description string, timeout time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", description)
}

//Personal.AI order the ending
