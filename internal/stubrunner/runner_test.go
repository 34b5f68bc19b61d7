package stubrunner

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"contractkit/contracts/fraudname"
	"contractkit/internal/contract"
)

func newFraudNameRunner(t *testing.T, cfg *Config, extra ...*contract.Contract) *Runner {
	t.Helper()

	reg, err := contract.NewRegistry(append(fraudname.Contracts(), extra...)...)
	require.NoError(t, err)
	return New(reg, cfg)
}

func put(t *testing.T, h http.Handler, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPut, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStubServesFraudNameContract(t *testing.T) {
	runner := newFraudNameRunner(t, nil)

	rec := put(t, runner, "/frauds/name", "application/json", `{"name":"marcin"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String(), "contract declares no response body")
}

func TestStubAcceptsUnicodeNamesAndCharset(t *testing.T) {
	runner := newFraudNameRunner(t, nil)

	rec := put(t, runner, "/frauds/name", "application/json; charset=utf-8", `{"name":"Łukasz"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStubRejectsNonMatchingRequests(t *testing.T) {
	runner := newFraudNameRunner(t, nil)

	tests := []struct {
		name        string
		method      string
		path        string
		contentType string
		body        string
	}{
		{name: "wrong method", method: http.MethodPost, path: "/frauds/name", contentType: "application/json", body: `{"name":"marcin"}`},
		{name: "wrong path", method: http.MethodPut, path: "/frauds/other", contentType: "application/json", body: `{"name":"marcin"}`},
		{name: "wrong content type", method: http.MethodPut, path: "/frauds/name", contentType: "text/plain", body: `{"name":"marcin"}`},
		{name: "missing content type", method: http.MethodPut, path: "/frauds/name", body: `{"name":"marcin"}`},
		{name: "digits in name", method: http.MethodPut, path: "/frauds/name", contentType: "application/json", body: `{"name":"marcin1"}`},
		{name: "name not a string", method: http.MethodPut, path: "/frauds/name", contentType: "application/json", body: `{"name":{"first":"m"}}`},
		{name: "name is true", method: http.MethodPut, path: "/frauds/name", contentType: "application/json", body: `{"name":true}`},
		{name: "name is false", method: http.MethodPut, path: "/frauds/name", contentType: "application/json", body: `{"name":false}`},
		{name: "name is a number", method: http.MethodPut, path: "/frauds/name", contentType: "application/json", body: `{"name":123}`},
		{name: "name is null", method: http.MethodPut, path: "/frauds/name", contentType: "application/json", body: `{"name":null}`},
		{name: "missing name", method: http.MethodPut, path: "/frauds/name", contentType: "application/json", body: `{"surname":"x"}`},
		{name: "malformed json", method: http.MethodPut, path: "/frauds/name", contentType: "application/json", body: `{"name":`},
		{name: "json array", method: http.MethodPut, path: "/frauds/name", contentType: "application/json", body: `["marcin"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			runner.ServeHTTP(rec, req)

			require.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, "not_found_error", gjson.Get(rec.Body.String(), "error.type").String())
		})
	}
}

func TestStubRendersDeclaredBodyAndHeaders(t *testing.T) {
	withBody := &contract.Contract{
		Name: "withBody",
		Request: contract.Request{
			Method: http.MethodPut,
			URL:    contract.Literal("/frauds/id"),
		},
		Response: contract.Response{
			Status:  http.StatusCreated,
			Headers: map[string]string{"X-Fraud-Check": "done"},
			Body: map[string]contract.Value{
				"result": contract.Literal("ok"),
				"id":     contract.Match(contract.AnyUUID),
			},
		},
	}
	runner := newFraudNameRunner(t, &Config{Seed: 42}, withBody)

	rec := put(t, runner, "/frauds/id", "", "")

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "done", rec.Header().Get("X-Fraud-Check"))
	assert.Equal(t, "ok", gjson.Get(rec.Body.String(), "result").String())
	assert.True(t, contract.AnyUUID.Matches(gjson.Get(rec.Body.String(), "id").String()))
}

func TestStubJournal(t *testing.T) {
	runner := newFraudNameRunner(t, nil)

	put(t, runner, "/frauds/name", "application/json", `{"name":"marcin"}`)
	put(t, runner, "/frauds/other", "application/json", `{"name":"marcin"}`)

	rec := httptest.NewRecorder()
	runner.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, AdminPrefix+"/requests", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []JournalEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)

	assert.True(t, entries[0].Matched)
	assert.Equal(t, "shouldReturnNonFraudForTheName", entries[0].Contract)
	assert.Equal(t, fraudname.ShouldReturnNonFraudForTheName().Fingerprint(), entries[0].Fingerprint)
	assert.Equal(t, `{"name":"marcin"}`, entries[0].Body)
	assert.NotEmpty(t, entries[0].ID)

	assert.False(t, entries[1].Matched)
	assert.Empty(t, entries[1].Contract)
	assert.Equal(t, "/frauds/other", entries[1].Path)

	rec = httptest.NewRecorder()
	runner.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, AdminPrefix+"/requests", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	left, err := runner.Journal().Entries(t.Context())
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestAdminContracts(t *testing.T) {
	runner := newFraudNameRunner(t, nil)

	rec := httptest.NewRecorder()
	runner.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, AdminPrefix+"/contracts", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Equal(t, "shouldReturnNonFraudForTheName", gjson.Get(body, "0.name").String())
	assert.Equal(t, "PUT", gjson.Get(body, "0.contract.request.method").String())
	assert.Equal(t, int64(200), gjson.Get(body, "0.contract.response.status").Int())
}

func TestAdminRequiresMasterKey(t *testing.T) {
	runner := newFraudNameRunner(t, &Config{MasterKey: "secret"})

	rec := httptest.NewRecorder()
	runner.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, AdminPrefix+"/requests", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, AdminPrefix+"/requests", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	runner.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	runner.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, AdminPrefix+"/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health is public")

	// Stubbed endpoints never require the key.
	rec = put(t, runner, "/frauds/name", "application/json", `{"name":"marcin"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStubMetrics(t *testing.T) {
	runner := newFraudNameRunner(t, &Config{MetricsEnabled: true})

	put(t, runner, "/frauds/name", "application/json", `{"name":"marcin"}`)

	rec := httptest.NewRecorder()
	runner.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, AdminPrefix+"/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(),
		`contractkit_stub_requests_total{contract="shouldReturnNonFraudForTheName",matched="true"} 1`)
}

func TestStubMetricsEndpointDoesNotShadowContracts(t *testing.T) {
	stats := &contract.Contract{
		Name:     "getStats",
		Request:  contract.Request{Method: http.MethodGet, URL: contract.Literal("/stats")},
		Response: contract.Response{Status: http.StatusNoContent},
	}

	t.Run("colliding endpoint falls back to admin path", func(t *testing.T) {
		runner := newFraudNameRunner(t, &Config{MetricsEnabled: true, MetricsEndpoint: "/stats"}, stats)

		rec := httptest.NewRecorder()
		runner.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code, "contract must answer its own path")

		rec = httptest.NewRecorder()
		runner.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, AdminPrefix+"/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "go_goroutines")
	})

	t.Run("free endpoint is used", func(t *testing.T) {
		runner := newFraudNameRunner(t, &Config{MetricsEnabled: true, MetricsEndpoint: "/prom"}, stats)

		rec := httptest.NewRecorder()
		runner.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/prom", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "go_goroutines")
	})
}

func TestFirstContractByNameWins(t *testing.T) {
	loose := &contract.Contract{
		Name: "aLooseMatch",
		Request: contract.Request{
			Method: http.MethodPut,
			URL:    contract.Literal("/frauds/name"),
		},
		Response: contract.Response{Status: http.StatusAccepted},
	}
	runner := newFraudNameRunner(t, nil, loose)

	rec := put(t, runner, "/frauds/name", "application/json", `{"name":"marcin"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
