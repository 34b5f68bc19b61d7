package verifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractkit/contracts/fraudname"
	"contractkit/internal/contract"
	"contractkit/internal/fraud"
	"contractkit/internal/server"
)

func newProducer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(server.New(fraud.NewDetector(), nil))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerifyFraudNameAgainstProducer(t *testing.T) {
	producer := newProducer(t)
	v := New(producer.Client(), producer.URL, WithSeed(42))

	res := v.Verify(t.Context(), fraudname.ShouldReturnNonFraudForTheName())

	assert.True(t, res.Passed, "failures: %v", res.Failures)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "shouldReturnNonFraudForTheName", res.Contract)
	assert.Len(t, res.Fingerprint, 16)
}

func TestVerifySendsGeneratedBody(t *testing.T) {
	var gotContentType, gotName string
	producer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		var body map[string]string
		_ = jsonDecode(r, &body)
		gotName = body["name"]
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(producer.Close)

	res := New(producer.Client(), producer.URL, WithSeed(1)).Verify(t.Context(), fraudname.ShouldReturnNonFraudForTheName())

	require.True(t, res.Passed, "failures: %v", res.Failures)
	assert.Equal(t, contract.ContentTypeJSON, gotContentType)
	assert.NotEmpty(t, gotName)
	assert.True(t, contract.AnyAlphaUnicode.Matches(gotName), "generated name %q", gotName)
}

func TestVerifyReportsFailures(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		response contract.Response
		contains string
	}{
		{
			name:     "wrong status",
			handler:  func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) },
			response: contract.Response{Status: http.StatusOK},
			contains: "status: expected 200, got 418",
		},
		{
			name:    "missing header",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) },
			response: contract.Response{
				Status:  http.StatusOK,
				Headers: map[string]string{"X-Verdict": "ok"},
			},
			contains: "header X-Verdict: missing",
		},
		{
			name: "body not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
			response: contract.Response{
				Status: http.StatusOK,
				Body:   map[string]contract.Value{"result": contract.Match(contract.NonEmpty)},
			},
			contains: "body: not valid JSON",
		},
		{
			name: "body field missing",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"other":"x"}`))
			},
			response: contract.Response{
				Status: http.StatusOK,
				Body:   map[string]contract.Value{"result": contract.Match(contract.NonEmpty)},
			},
			contains: "body $.result: missing",
		},
		{
			name: "string matcher rejects boolean",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"name":true}`))
			},
			response: contract.Response{
				Status: http.StatusOK,
				Body:   map[string]contract.Value{"name": contract.Match(contract.AnyAlphaUnicode)},
			},
			contains: "body $.name: expected anyAlphaUnicode, got true",
		},
		{
			name: "string matcher rejects number",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"name":123}`))
			},
			response: contract.Response{
				Status: http.StatusOK,
				Body:   map[string]contract.Value{"name": contract.Match(contract.AnyAlphaUnicode)},
			},
			contains: "body $.name: expected anyAlphaUnicode, got 123",
		},
		{
			name: "body field mismatch",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"result":42}`))
			},
			response: contract.Response{
				Status: http.StatusOK,
				Body:   map[string]contract.Value{"result": contract.Literal("ok")},
			},
			contains: "body $.result: expected ok, got 42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			producer := httptest.NewServer(tt.handler)
			t.Cleanup(producer.Close)

			c := fraudname.ShouldReturnNonFraudForTheName()
			c.Response = tt.response

			res := New(producer.Client(), producer.URL, WithSeed(3)).Verify(t.Context(), c)

			assert.False(t, res.Passed)
			require.NotEmpty(t, res.Failures)
			assert.Contains(t, res.Failures, tt.contains)
		})
	}
}

func TestVerifyContentTypeComparedByMediaType(t *testing.T) {
	producer := newProducer(t)

	c := fraudname.ShouldReturnNonFraudForTheName()
	c.Response.Headers = map[string]string{"Content-Type": contract.ContentTypeJSON}
	c.Response.Body = map[string]contract.Value{"result": contract.Match(contract.NonEmpty)}

	res := New(producer.Client(), producer.URL, WithSeed(5)).Verify(t.Context(), c)
	assert.True(t, res.Passed, "failures: %v", res.Failures)
}

func TestVerifyTransportError(t *testing.T) {
	producer := httptest.NewServer(http.NotFoundHandler())
	url := producer.URL
	producer.Close()

	res := New(nil, url).Verify(t.Context(), fraudname.ShouldReturnNonFraudForTheName())
	assert.False(t, res.Passed)
	assert.Zero(t, res.Status)
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0], "request failed")
}

func TestVerifyCustomMatcherCannotGenerate(t *testing.T) {
	producer := newProducer(t)

	custom, err := contract.Regex(`[A-Z]{3}`)
	require.NoError(t, err)
	c := fraudname.ShouldReturnNonFraudForTheName()
	c.Request.Body["name"] = contract.Match(custom)

	res := New(producer.Client(), producer.URL).Verify(t.Context(), c)
	assert.False(t, res.Passed)
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0], "cannot build request field name")
}

func TestVerifyAll(t *testing.T) {
	producer := newProducer(t)

	broken := fraudname.ShouldReturnNonFraudForTheName()
	broken.Name = "brokenStatus"
	broken.Response.Status = http.StatusCreated

	var observed []string
	v := New(producer.Client(), producer.URL+"/", WithSeed(9), WithObserver(func(r Result) {
		observed = append(observed, r.Contract)
	}))

	report := v.VerifyAll(context.Background(), []*contract.Contract{
		fraudname.ShouldReturnNonFraudForTheName(),
		broken,
	})

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, producer.URL, report.BaseURL)
	assert.Equal(t, 1, report.Passed)
	assert.Equal(t, 1, report.Failed)
	assert.False(t, report.OK())
	require.Len(t, report.Results, 2)
	assert.True(t, report.Results[0].Passed)
	assert.False(t, report.Results[1].Passed)
	assert.Equal(t, []string{"shouldReturnNonFraudForTheName", "brokenStatus"}, observed)
}

func TestVerifyAllEmpty(t *testing.T) {
	report := New(nil, "http://localhost").VerifyAll(t.Context(), nil)
	assert.True(t, report.OK())
	assert.Empty(t, report.Results)
}

func jsonDecode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
