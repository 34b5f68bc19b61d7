// Package contract models declarative request/response contracts.
//
// A Contract describes one expected HTTP interaction: the request a consumer
// sends and the response a producer answers with. Request and response values
// are either literals or Matchers, which stand for a class of acceptable
// values. Contracts are read-only input to the stub runner and the verifier;
// once authored they are never modified, and registries hand out clones.
package contract

import (
	"encoding/json"
	"fmt"
	"maps"
	"math/rand/v2"
	"mime"
	"net/http"
	"reflect"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/tidwall/gjson"
)

// ContentTypeJSON is the media type used by JSON contracts.
const ContentTypeJSON = "application/json"

// Value is either a literal or a matcher placeholder.
type Value struct {
	Literal any
	Matcher *Matcher
}

// Literal wraps a concrete value.
func Literal(v any) Value { return Value{Literal: v} }

// Match wraps a matcher placeholder.
func Match(m *Matcher) Value { return Value{Matcher: m} }

// IsMatcher reports whether v is a matcher placeholder.
func (v Value) IsMatcher() bool { return v.Matcher != nil }

// MatchesString checks a plain string (URL path, header) against v.
func (v Value) MatchesString(s string) bool {
	if v.Matcher != nil {
		return v.Matcher.Matches(s)
	}
	return fmt.Sprint(v.Literal) == s
}

// MatchesJSON checks a JSON value looked up with gjson against v.
// Missing values never match.
func (v Value) MatchesJSON(r gjson.Result) bool {
	if !r.Exists() {
		return false
	}
	if v.Matcher != nil {
		return v.Matcher.MatchesJSON(r)
	}
	want, err := normalize(v.Literal)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(want, r.Value())
}

// Sample returns a concrete value for v: the literal itself, or a value
// generated by the matcher.
func (v Value) Sample(r *rand.Rand) (any, error) {
	if v.Matcher != nil {
		return v.Matcher.Sample(r)
	}
	return v.Literal, nil
}

func (v Value) String() string {
	if v.Matcher != nil {
		return v.Matcher.String()
	}
	return fmt.Sprintf("%v", v.Literal)
}

// MarshalJSON renders literals as themselves and matchers as
// {"$matcher": name, "$regex": pattern}.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Matcher != nil {
		return json.Marshal(map[string]string{
			"$matcher": v.Matcher.Name(),
			"$regex":   v.Matcher.Pattern(),
		})
	}
	return json.Marshal(v.Literal)
}

// normalize converts a literal into the shape gjson.Result.Value produces.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Request is the request side of a contract.
type Request struct {
	Method string
	URL    Value
	// Body maps top-level JSON field names to values. Nil means no body.
	Body    map[string]Value
	Headers map[string]string
}

// Response is the response side of a contract. Nil Body or Headers means the
// contract does not assert them.
type Response struct {
	Status  int
	Body    map[string]Value
	Headers map[string]string
}

// Contract is one expected request/response interaction.
type Contract struct {
	Name        string
	Description string
	Request     Request
	Response    Response
}

// ValidationError reports an invalid contract field.
type ValidationError struct {
	Contract string
	Field    string
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.Contract == "" {
		return fmt.Sprintf("invalid contract: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid contract %q: %s: %s", e.Contract, e.Field, e.Reason)
}

var methods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodPatch:   {},
	http.MethodDelete:  {},
	http.MethodOptions: {},
	http.MethodTrace:   {},
}

// Validate checks that the contract is well formed.
func (c *Contract) Validate() error {
	invalid := func(field, reason string) error {
		return &ValidationError{Contract: c.Name, Field: field, Reason: reason}
	}

	if c.Name == "" {
		return invalid("name", "must not be empty")
	}
	if _, ok := methods[c.Request.Method]; !ok {
		return invalid("request.method", fmt.Sprintf("unsupported HTTP method %q", c.Request.Method))
	}
	if c.Request.URL.Matcher == nil {
		path, ok := c.Request.URL.Literal.(string)
		if !ok || !strings.HasPrefix(path, "/") {
			return invalid("request.url", "must be a path starting with '/'")
		}
	}
	if err := validMatcher(c.Request.URL.Matcher); err != nil {
		return invalid("request.url", err.Error())
	}
	for _, name := range slices.Sorted(maps.Keys(c.Request.Body)) {
		if name == "" {
			return invalid("request.body", "field names must not be empty")
		}
		if err := validMatcher(c.Request.Body[name].Matcher); err != nil {
			return invalid("request.body."+name, err.Error())
		}
	}
	for name, value := range c.Request.Headers {
		if name == "" {
			return invalid("request.headers", "header names must not be empty")
		}
		if strings.EqualFold(name, "Content-Type") {
			if _, _, err := mime.ParseMediaType(value); err != nil {
				return invalid("request.headers.Content-Type", err.Error())
			}
		}
	}
	if c.Response.Status < 100 || c.Response.Status > 599 {
		return invalid("response.status", fmt.Sprintf("%d is not a valid HTTP status", c.Response.Status))
	}
	for _, name := range slices.Sorted(maps.Keys(c.Response.Body)) {
		if err := validMatcher(c.Response.Body[name].Matcher); err != nil {
			return invalid("response.body."+name, err.Error())
		}
	}
	return nil
}

// validMatcher rejects matchers not built by Predefined, the package
// variables or Regex. A nil matcher is a literal and is valid.
func validMatcher(m *Matcher) error {
	if m == nil {
		return nil
	}
	if m.re == nil {
		return fmt.Errorf("matcher %q has no pattern; use a predefined matcher or Regex", m.name)
	}
	if _, ok := predefined[m.name]; !ok && m.name != regexMatcherName {
		return fmt.Errorf("unknown matcher %q", m.name)
	}
	return nil
}

// Path returns the literal request path, or the matcher's pattern.
func (c *Contract) Path() string {
	if c.Request.URL.Matcher != nil {
		return c.Request.URL.Matcher.Pattern()
	}
	return fmt.Sprint(c.Request.URL.Literal)
}

// Clone returns a deep copy of the contract's maps. Literal values are shared;
// they are never mutated.
func (c *Contract) Clone() *Contract {
	out := *c
	out.Request.Body = cloneValues(c.Request.Body)
	out.Request.Headers = cloneHeaders(c.Request.Headers)
	out.Response.Body = cloneValues(c.Response.Body)
	out.Response.Headers = cloneHeaders(c.Response.Headers)
	return &out
}

func cloneValues(in map[string]Value) map[string]Value {
	if in == nil {
		return nil
	}
	out := make(map[string]Value, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneHeaders(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type jsonRequest struct {
	Method  string            `json:"method"`
	URL     Value             `json:"url"`
	Body    map[string]Value  `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type jsonResponse struct {
	Status  int               `json:"status"`
	Body    map[string]Value  `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type jsonContract struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Request     jsonRequest  `json:"request"`
	Response    jsonResponse `json:"response"`
}

// MarshalJSON renders the canonical JSON form of the contract. Map keys are
// sorted, so equal contracts always produce equal bytes.
func (c *Contract) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonContract{
		Name:        c.Name,
		Description: c.Description,
		Request: jsonRequest{
			Method:  c.Request.Method,
			URL:     c.Request.URL,
			Body:    c.Request.Body,
			Headers: canonicalHeaders(c.Request.Headers),
		},
		Response: jsonResponse{
			Status:  c.Response.Status,
			Body:    c.Response.Body,
			Headers: canonicalHeaders(c.Response.Headers),
		},
	})
}

func canonicalHeaders(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[http.CanonicalHeaderKey(k)] = v
	}
	return out
}

// Fingerprint returns a stable identifier derived from the canonical JSON form.
func (c *Contract) Fingerprint() string {
	raw, err := c.MarshalJSON()
	if err != nil {
		// Only unmarshalable literals get here; fall back to the name.
		raw = []byte(c.Name)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(raw))
}

// BodyPath returns the gjson path addressing a top-level field.
func BodyPath(field string) string {
	var b strings.Builder
	for _, r := range field {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SameMediaType reports whether two Content-Type values name the same media
// type, ignoring parameters such as charset.
func SameMediaType(a, b string) bool {
	ma, _, errA := mime.ParseMediaType(a)
	mb, _, errB := mime.ParseMediaType(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return ma == mb
}
