// Package fraud decides whether a client name is on the fraud list.
package fraud

import (
	"fmt"
	"strings"
)

// NameRequest is the body of PUT /frauds/name.
type NameRequest struct {
	Name string `json:"name"`
}

// NameResponse is the answer to a name check.
type NameResponse struct {
	Result string `json:"result"`
}

// Detector holds the names that are treated as fraudulent.
// Comparisons are case-insensitive. A Detector is read-only after construction.
type Detector struct {
	names map[string]struct{}
}

// NewDetector creates a detector for the given names. With no names, the
// single name "fraud" is used.
func NewDetector(names ...string) *Detector {
	if len(names) == 0 {
		names = []string{"fraud"}
	}
	d := &Detector{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			d.names[strings.ToLower(n)] = struct{}{}
		}
	}
	return d
}

// IsFraudByName reports whether name is on the fraud list.
func (d *Detector) IsFraudByName(name string) bool {
	_, ok := d.names[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// CheckName returns the verdict message for name.
func (d *Detector) CheckName(name string) NameResponse {
	if d.IsFraudByName(name) {
		return NameResponse{Result: fmt.Sprintf("Sorry %s but you're a fraud", name)}
	}
	return NameResponse{Result: fmt.Sprintf("Don't worry %s you're not a fraud", name)}
}
