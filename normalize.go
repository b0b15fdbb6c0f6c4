package semjoin

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer maps a raw cell value to its canonical string form.
// Normalize must never panic; values it cannot interpret degrade to a
// sentinel form (the empty string for missing values, otherwise the
// default folding) so that one bad cell only lowers confidence for its row.
// Every built-in normalizer is idempotent: Normalize(Normalize(v)) == Normalize(v).
type Normalizer interface {
	Name() string
	DefaultConfidence() float64
	Normalize(v any) string
}

// Built-in normalizer names.
const (
	NormalizerEmail       = "email"
	NormalizerPhone       = "phone"
	NormalizerName        = "name"
	NormalizerAddress     = "address"
	NormalizerNumeric     = "numeric"
	NormalizerDate        = "date"
	NormalizerCategorical = "categorical"
	NormalizerUUID        = "uuid"
	NormalizerDefault     = "default"
)

// NormalizerFunc adapts a plain function into a Normalizer.
type NormalizerFunc struct {
	name       string
	confidence float64
	fn         func(any) string
}

// NewNormalizerFunc creates a named normalizer from fn.
func NewNormalizerFunc(name string, confidence float64, fn func(any) string) *NormalizerFunc {
	return &NormalizerFunc{name: name, confidence: clamp01(confidence), fn: fn}
}

func (n *NormalizerFunc) Name() string               { return n.name }
func (n *NormalizerFunc) DefaultConfidence() float64 { return n.confidence }

// Normalize applies the wrapped function, turning a panic into the default
// folding of the value.
func (n *NormalizerFunc) Normalize(v any) (out string) {
	if isMissing(v) {
		return ""
	}
	defer func() {
		if r := recover(); r != nil {
			out = normalizeDefault(v)
		}
	}()
	return n.fn(v)
}

// safeNormalize applies n to v. Missing values map to "" and a panicking
// normalizer degrades to the default folding.
func safeNormalize(n Normalizer, v any) (out string) {
	if isMissing(v) {
		return ""
	}
	defer func() {
		if r := recover(); r != nil {
			out = normalizeDefault(v)
		}
	}()
	return n.Normalize(v)
}

// ============================================================================
// Registry
// ============================================================================

// NormalizerRegistry is a name-keyed table of normalizers. Each Engine owns
// its own registry; registering on one engine never affects another.
type NormalizerRegistry struct {
	mu          sync.RWMutex
	normalizers map[string]Normalizer
}

// NewNormalizerRegistry returns a registry holding the built-in normalizers.
func NewNormalizerRegistry() *NormalizerRegistry {
	r := &NormalizerRegistry{normalizers: make(map[string]Normalizer)}
	for _, n := range builtinNormalizers() {
		r.normalizers[n.Name()] = n
	}
	return r
}

// Register adds or replaces a normalizer.
func (r *NormalizerRegistry) Register(n Normalizer) error {
	if n == nil || n.Name() == "" {
		return fmt.Errorf("normalizer must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.normalizers[n.Name()] = n
	return nil
}

// Lookup returns the named normalizer.
func (r *NormalizerRegistry) Lookup(name string) (Normalizer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.normalizers[name]
	return n, ok
}

// MustLookup returns the named normalizer or the default one.
func (r *NormalizerRegistry) MustLookup(name string) Normalizer {
	if n, ok := r.Lookup(name); ok {
		return n
	}
	n, _ := r.Lookup(NormalizerDefault)
	return n
}

// Names returns registered names in sorted order.
func (r *NormalizerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.normalizers))
	for name := range r.normalizers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy of the registry.
func (r *NormalizerRegistry) Clone() *NormalizerRegistry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := &NormalizerRegistry{normalizers: make(map[string]Normalizer, len(r.normalizers))}
	for k, v := range r.normalizers {
		c.normalizers[k] = v
	}
	return c
}

func builtinNormalizers() []Normalizer {
	return []Normalizer{
		NewNormalizerFunc(NormalizerEmail, 0.9, normalizeEmail),
		NewNormalizerFunc(NormalizerPhone, 0.85, normalizePhone),
		NewNormalizerFunc(NormalizerName, 0.8, normalizeName),
		NewNormalizerFunc(NormalizerAddress, 0.75, normalizeAddress),
		NewNormalizerFunc(NormalizerNumeric, 0.9, normalizeNumeric),
		NewNormalizerFunc(NormalizerDate, 0.85, normalizeDate),
		NewNormalizerFunc(NormalizerCategorical, 0.85, normalizeCategorical),
		NewNormalizerFunc(NormalizerUUID, 0.95, normalizeUUID),
		NewNormalizerFunc(NormalizerDefault, 0.7, normalizeDefault),
	}
}

// ============================================================================
// Built-in normalizers
// ============================================================================

var collapseSpace = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

func squeeze(s string) string {
	return strings.Join(strings.Fields(collapseSpace.Replace(s)), " ")
}

func normalizeDefault(v any) string {
	return strings.ToLower(squeeze(formatValue(v)))
}

func normalizeEmail(v any) string {
	s := strings.ToLower(strings.Join(strings.Fields(formatValue(v)), ""))
	for {
		prev := s
		s = strings.TrimPrefix(strings.Trim(s, "<>"), "mailto:")
		if s == prev {
			return s
		}
	}
}

func normalizePhone(v any) string {
	raw := formatValue(v)
	if i := strings.IndexAny(strings.ToLower(raw), "x#"); i > 0 {
		// drop extensions: "555-1234 x12"
		raw = raw[:i]
	}
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return normalizeDefault(v)
	}
	// international "00" prefix and NANP country code; repeat to a fixpoint
	for {
		prev := digits
		digits = strings.TrimPrefix(digits, "00")
		if len(digits) == 11 && digits[0] == '1' {
			digits = digits[1:]
		}
		if digits == prev {
			return digits
		}
	}
}

// foldDiacritics strips combining marks after NFKD decomposition.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

var honorifics = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "miss": true, "dr": true, "prof": true,
	"sir": true, "jr": true, "sr": true,
}

func normalizeName(v any) string {
	s := foldDiacritics(formatValue(v))
	// "Doe, John" -> "John Doe"
	if i := strings.Index(s, ","); i > 0 {
		s = strings.TrimSpace(s[i+1:]) + " " + strings.TrimSpace(s[:i])
	}
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		if r == '-' || r == '\'' {
			return -1
		}
		return ' '
	}, s)

	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if !honorifics[f] {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}

var addressAbbreviations = map[string]string{
	"street": "st", "avenue": "ave", "av": "ave", "road": "rd", "boulevard": "blvd",
	"drive": "dr", "lane": "ln", "court": "ct", "place": "pl", "square": "sq",
	"suite": "ste", "apartment": "apt", "highway": "hwy", "parkway": "pkwy",
	"north": "n", "south": "s", "east": "e", "west": "w",
}

func normalizeAddress(v any) string {
	s := strings.ToLower(foldDiacritics(formatValue(v)))
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, s)
	fields := strings.Fields(s)
	for i, f := range fields {
		if abbr, ok := addressAbbreviations[f]; ok {
			fields[i] = abbr
		}
	}
	return strings.Join(fields, " ")
}

var numericStrip = strings.NewReplacer(",", "", "$", "", "€", "", "£", "", "¥", "", " ", "", "_", "")

func normalizeNumeric(v any) string {
	if f, ok := toFloat64(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := numericStrip.Replace(strings.TrimSpace(formatValue(v)))
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + strings.Trim(s, "()")
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return normalizeDefault(v)
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"02.01.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"20060102",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// normalizeDate formats the UTC calendar day, so an instant gets one key
// whether it arrives as a time.Time or as text with an offset.
func normalizeDate(v any) string {
	t, ok := v.(time.Time)
	if !ok {
		t, ok = parseDate(formatValue(v))
	}
	if !ok {
		return normalizeDefault(v)
	}
	return t.UTC().Format("2006-01-02")
}

func normalizeCategorical(v any) string {
	s := strings.ToLower(foldDiacritics(formatValue(v)))
	s = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(s)
	return squeeze(s)
}

func normalizeUUID(v any) string {
	raw := strings.TrimSpace(formatValue(v))
	if id, err := uuid.Parse(raw); err == nil {
		return id.String()
	}
	return normalizeDefault(v)
}
