package stubrunner

import (
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"contractkit/internal/contract"
)

// matchRequest reports whether req (with its already-read body) satisfies the
// request side of c.
func matchRequest(c *contract.Contract, req *http.Request, body []byte) bool {
	if !strings.EqualFold(req.Method, c.Request.Method) {
		return false
	}
	if !c.Request.URL.MatchesString(req.URL.Path) {
		return false
	}
	if !matchHeaders(c.Request.Headers, req.Header) {
		return false
	}
	return matchBody(c.Request.Body, body)
}

func matchHeaders(want map[string]string, got http.Header) bool {
	for name, value := range want {
		actual := got.Get(name)
		if actual == "" {
			return false
		}
		if strings.EqualFold(name, "Content-Type") {
			if !contract.SameMediaType(value, actual) {
				return false
			}
			continue
		}
		if actual != value {
			return false
		}
	}
	return true
}

func matchBody(want map[string]contract.Value, body []byte) bool {
	if want == nil {
		return true
	}
	if !gjson.ValidBytes(body) {
		return false
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return false
	}
	for field, value := range want {
		if !value.MatchesJSON(doc.Get(contract.BodyPath(field))) {
			return false
		}
	}
	return true
}
