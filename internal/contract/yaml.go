package contract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// predefinedYAML maps the YAML "predefined" names onto matchers.
var predefinedYAML = map[string]*Matcher{
	"only_alpha_unicode": AnyAlphaUnicode,
	"alpha_numeric":      AnyAlphaNumeric,
	"non_blank":          AnyNonBlankString,
	"non_empty":          NonEmpty,
	"number":             AnyNumber,
	"integer":            AnyInteger,
	"any_boolean":        AnyBoolean,
	"uuid":               AnyUUID,
	"email":              AnyEmail,
}

type yamlContract struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Request     yamlRequest  `yaml:"request"`
	Response    yamlResponse `yaml:"response"`
}

type yamlRequest struct {
	Method   string            `yaml:"method"`
	URL      string            `yaml:"url"`
	Body     map[string]any    `yaml:"body"`
	Headers  map[string]string `yaml:"headers"`
	Matchers yamlMatchers      `yaml:"matchers"`
}

type yamlResponse struct {
	Status   int               `yaml:"status"`
	Body     map[string]any    `yaml:"body"`
	Headers  map[string]string `yaml:"headers"`
	Matchers yamlMatchers      `yaml:"matchers"`
}

type yamlMatchers struct {
	URL  *yamlMatcher  `yaml:"url"`
	Body []yamlMatcher `yaml:"body"`
}

type yamlMatcher struct {
	Path       string `yaml:"path"`
	Type       string `yaml:"type"`
	Value      string `yaml:"value"`
	Regex      string `yaml:"regex"`
	Predefined string `yaml:"predefined"`
}

// Parse decodes a single YAML contract. Unknown keys are rejected.
func Parse(data []byte) (*Contract, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc yamlContract
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty contract document")
		}
		return nil, fmt.Errorf("failed to decode contract: %w", err)
	}
	return doc.toContract()
}

// LoadFile reads a YAML contract from path. The contract name defaults to the
// file name without extension.
func LoadFile(path string) (*Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read contract %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if c.Name == "" {
		c.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// LoadDir loads every *.yml and *.yaml file under dir, in lexical path order.
func LoadDir(dir string) ([]*Contract, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yml", ".yaml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan contracts directory %s: %w", dir, err)
	}
	sort.Strings(paths)

	contracts := make([]*Contract, 0, len(paths))
	for _, path := range paths {
		c, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	return contracts, nil
}

func (doc *yamlContract) toContract() (*Contract, error) {
	c := &Contract{
		Name:        doc.Name,
		Description: doc.Description,
		Request: Request{
			Method:  strings.ToUpper(doc.Request.Method),
			URL:     Literal(doc.Request.URL),
			Headers: doc.Request.Headers,
		},
		Response: Response{
			Status:  doc.Response.Status,
			Headers: doc.Response.Headers,
		},
	}

	if m := doc.Request.Matchers.URL; m != nil {
		matcher, err := m.matcher()
		if err != nil {
			return nil, fmt.Errorf("request.matchers.url: %w", err)
		}
		c.Request.URL = Match(matcher)
	}

	var err error
	if c.Request.Body, err = bodyValues(doc.Request.Body, doc.Request.Matchers.Body); err != nil {
		return nil, fmt.Errorf("request.matchers.body: %w", err)
	}
	if c.Response.Body, err = bodyValues(doc.Response.Body, doc.Response.Matchers.Body); err != nil {
		return nil, fmt.Errorf("response.matchers.body: %w", err)
	}
	return c, nil
}

func bodyValues(body map[string]any, matchers []yamlMatcher) (map[string]Value, error) {
	if body == nil && len(matchers) == 0 {
		return nil, nil
	}

	out := make(map[string]Value, len(body))
	for k, v := range body {
		out[k] = Literal(v)
	}
	for _, m := range matchers {
		field, ok := strings.CutPrefix(m.Path, "$.")
		if !ok || field == "" || strings.ContainsAny(field, ".[") {
			return nil, fmt.Errorf("unsupported path %q: only top-level fields ($.name) are supported", m.Path)
		}
		if m.Type == "by_equality" {
			if _, ok := out[field]; !ok {
				return nil, fmt.Errorf("by_equality matcher for %s has no body value", m.Path)
			}
			continue
		}
		matcher, err := m.matcher()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.Path, err)
		}
		out[field] = Match(matcher)
	}
	return out, nil
}

func (m *yamlMatcher) matcher() (*Matcher, error) {
	if m.Type != "" && m.Type != "by_regex" {
		return nil, fmt.Errorf("unsupported matcher type %q", m.Type)
	}
	switch {
	case m.Predefined != "":
		matcher, ok := predefinedYAML[m.Predefined]
		if !ok {
			return nil, fmt.Errorf("unknown predefined matcher %q", m.Predefined)
		}
		return matcher, nil
	case m.Regex != "":
		return Regex(m.Regex)
	case m.Value != "":
		return Regex(m.Value)
	default:
		return nil, fmt.Errorf("matcher needs one of predefined, regex or value")
	}
}
