package contract

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Kind is the JSON type a matcher's samples are rendered as.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBoolean
)

// Matcher describes a class of acceptable values by regular expression.
// Matchers are immutable and safe for concurrent use.
type Matcher struct {
	name    string
	pattern string
	re      *regexp.Regexp
	kind    Kind
	sample  func(r *rand.Rand) string
}

// regexMatcherName names custom matchers built by Regex.
const regexMatcherName = "regex"

// Predefined matcher names.
const (
	NameAnyAlphaUnicode   = "anyAlphaUnicode"
	NameAnyAlphaNumeric   = "anyAlphaNumeric"
	NameAnyNonBlankString = "anyNonBlankString"
	NameNonEmpty          = "nonEmpty"
	NameAnyNumber         = "anyNumber"
	NameAnyInteger        = "anyInteger"
	NameAnyBoolean        = "anyBoolean"
	NameAnyUUID           = "anyUuid"
	NameAnyEmail          = "anyEmail"
)

const alphaUnicodeLetters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZäöüßéèàçñøåżółćęśąń"

var (
	AnyAlphaUnicode   = mustMatcher(NameAnyAlphaUnicode, `[\p{L}]*`, KindString, sampleFrom(alphaUnicodeLetters))
	AnyAlphaNumeric   = mustMatcher(NameAnyAlphaNumeric, `[\p{L}\p{N}]*`, KindString, sampleFrom("abcdefghijklmnopqrstuvwxyz0123456789"))
	AnyNonBlankString = mustMatcher(NameAnyNonBlankString, `\s*\S[\S\s]*`, KindString, sampleFrom("abcdefghijklmnopqrstuvwxyz"))
	NonEmpty          = mustMatcher(NameNonEmpty, `[\S\s]+`, KindString, sampleFrom("abcdefghijklmnopqrstuvwxyz"))
	AnyNumber         = mustMatcher(NameAnyNumber, `-?(\d*\.\d+|\d+)`, KindNumber, sampleNumber)
	AnyInteger        = mustMatcher(NameAnyInteger, `-?(\d+)`, KindNumber, sampleInteger)
	AnyBoolean        = mustMatcher(NameAnyBoolean, `(true|false)`, KindBoolean, sampleBoolean)
	AnyUUID           = mustMatcher(NameAnyUUID, `[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}`, KindString, sampleUUID)
	AnyEmail          = mustMatcher(NameAnyEmail, `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,6}`, KindString, sampleEmail)
)

var predefined = map[string]*Matcher{
	NameAnyAlphaUnicode:   AnyAlphaUnicode,
	NameAnyAlphaNumeric:   AnyAlphaNumeric,
	NameAnyNonBlankString: AnyNonBlankString,
	NameNonEmpty:          NonEmpty,
	NameAnyNumber:         AnyNumber,
	NameAnyInteger:        AnyInteger,
	NameAnyBoolean:        AnyBoolean,
	NameAnyUUID:           AnyUUID,
	NameAnyEmail:          AnyEmail,
}

// Predefined returns the built-in matcher with the given name.
func Predefined(name string) (*Matcher, bool) {
	m, ok := predefined[name]
	return m, ok
}

// Regex returns a custom matcher for pattern. The pattern must match the
// whole value. Custom matchers cannot generate samples.
func Regex(pattern string) (*Matcher, error) {
	re, err := compileFull(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid matcher pattern %q: %w", pattern, err)
	}
	return &Matcher{name: regexMatcherName, pattern: pattern, re: re, kind: KindString}, nil
}

func mustMatcher(name, pattern string, kind Kind, sample func(*rand.Rand) string) *Matcher {
	re, err := compileFull(pattern)
	if err != nil {
		panic(err)
	}
	return &Matcher{name: name, pattern: pattern, re: re, kind: kind, sample: sample}
}

func compileFull(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(`^(?:` + pattern + `)$`)
}

// Name returns the matcher name, "regex" for custom matchers.
func (m *Matcher) Name() string { return m.name }

// Pattern returns the regular expression without anchors.
func (m *Matcher) Pattern() string { return m.pattern }

// Matches reports whether s as a whole belongs to the matcher's class.
func (m *Matcher) Matches(s string) bool {
	return m.re.MatchString(s)
}

// MatchesJSON reports whether a JSON value has the matcher's kind and its
// text belongs to the matcher's class. A string matcher never accepts
// numbers or booleans.
func (m *Matcher) MatchesJSON(r gjson.Result) bool {
	switch m.kind {
	case KindNumber:
		if r.Type != gjson.Number {
			return false
		}
	case KindBoolean:
		if r.Type != gjson.True && r.Type != gjson.False {
			return false
		}
	default:
		if r.Type != gjson.String {
			return false
		}
	}
	return m.Matches(r.String())
}

// Generate returns a sample string accepted by the matcher.
func (m *Matcher) Generate(r *rand.Rand) (string, error) {
	if m.sample == nil {
		return "", fmt.Errorf("matcher %s (%s) cannot generate sample values", m.name, m.pattern)
	}
	return m.sample(r), nil
}

// Sample returns a generated value typed according to the matcher's kind.
func (m *Matcher) Sample(r *rand.Rand) (any, error) {
	s, err := m.Generate(r)
	if err != nil {
		return nil, err
	}
	switch m.kind {
	case KindNumber:
		return strconv.ParseFloat(s, 64)
	case KindBoolean:
		return s == "true", nil
	default:
		return s, nil
	}
}

func (m *Matcher) String() string {
	if m.name == regexMatcherName {
		return "regex(" + m.pattern + ")"
	}
	return m.name
}

func sampleFrom(alphabet string) func(*rand.Rand) string {
	letters := []rune(alphabet)
	return func(r *rand.Rand) string {
		n := 5 + r.IntN(10)
		var b strings.Builder
		for range n {
			b.WriteRune(letters[r.IntN(len(letters))])
		}
		return b.String()
	}
}

func sampleNumber(r *rand.Rand) string {
	return strconv.FormatFloat(float64(r.IntN(100000))/100, 'f', -1, 64)
}

func sampleInteger(r *rand.Rand) string {
	return strconv.Itoa(r.IntN(100000))
}

func sampleBoolean(r *rand.Rand) string {
	return strconv.FormatBool(r.IntN(2) == 1)
}

func sampleUUID(r *rand.Rand) string {
	var b [16]byte
	for i := range b {
		b[i] = byte(r.UintN(256))
	}
	// Force version 4 / RFC 4122 variant so the value is a well-formed UUID.
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return uuid.UUID(b).String()
}

func sampleEmail(r *rand.Rand) string {
	return sampleFrom("abcdefghijklmnopqrstuvwxyz")(r) + "@example.com"
}
