// Package fraudname holds the contracts for the fraud-by-name endpoint.
package fraudname

import (
	"embed"
	"net/http"

	"contractkit/internal/contract"
)

//go:embed *.yaml
var files embed.FS

// ShouldReturnNonFraudForTheName is the contract for PUT /frauds/name with an
// alphabetic name. The response body and headers are not asserted yet.
func ShouldReturnNonFraudForTheName() *contract.Contract {
	return &contract.Contract{
		Name:        "shouldReturnNonFraudForTheName",
		Description: "A name that is not on the fraud list is accepted.",
		Request: contract.Request{
			Method: http.MethodPut,
			URL:    contract.Literal("/frauds/name"),
			Body: map[string]contract.Value{
				"name": contract.Match(contract.AnyAlphaUnicode),
			},
			Headers: map[string]string{
				"Content-Type": contract.ContentTypeJSON,
			},
		},
		Response: contract.Response{
			Status: http.StatusOK,
		},
	}
}

// Contracts returns every contract of this package.
func Contracts() []*contract.Contract {
	return []*contract.Contract{ShouldReturnNonFraudForTheName()}
}

// YAML returns the on-disk form of the named contract file.
func YAML(name string) ([]byte, error) {
	return files.ReadFile(name + ".yaml")
}
