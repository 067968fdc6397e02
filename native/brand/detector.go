package brand

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// levenshteinThreshold is the maximum number of edits separating a lookalike
// from the brand keyword it mimics.
const levenshteinThreshold = 2

// homoglyphs maps the common leetspeak substitutions squatters use to dodge
// plain substring checks.
var homoglyphs = strings.NewReplacer(
	"0", "o",
	"1", "l",
	"@", "a",
	"$", "s",
	"!", "i",
	"3", "e",
)

// Detector decides whether a payment address is trying to look like a
// protected brand.
type Detector struct {
	registry *Registry
}

// NewDetector builds a detector over the supplied registry. A nil registry is
// treated as empty.
func NewDetector(registry *Registry) *Detector {
	if registry == nil {
		registry = NewRegistry(nil)
	}
	return &Detector{registry: registry}
}

// Check reports whether the VPA impersonates a registered brand and, if so,
// which one. Addresses listed in a brand's allowed set are exempt for that
// brand only.
func (d *Detector) Check(vpa string) (bool, string) {
	vpa = strings.TrimSpace(vpa)
	if vpa == "" || d == nil || d.registry == nil || len(d.registry.names) == 0 {
		return false, ""
	}

	local := vpa
	if at := strings.Index(vpa, "@"); at >= 0 {
		local = vpa[:at]
	}
	candidate := normalize(local)

	for _, name := range d.registry.names {
		ent := d.registry.entries[name]
		if _, ok := ent.allowed[vpa]; ok {
			continue
		}
		for _, keyword := range ent.keywords {
			if strings.Contains(candidate, keyword) {
				return true, name
			}
			if abs(len(candidate)-len(keyword)) > levenshteinThreshold {
				continue
			}
			if len(keyword) > 3 && levenshtein(candidate, keyword) <= levenshteinThreshold {
				return true, name
			}
		}
	}
	return false, ""
}

// normalize folds a VPA local part into its canonical lookalike form: NFKC
// normalization, lowercasing, then leetspeak substitution.
func normalize(text string) string {
	text = norm.NFKC.String(text)
	text = strings.ToLower(text)
	return homoglyphs.Replace(text)
}

// levenshtein computes the edit distance between two strings using the
// two-row dynamic programming formulation.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(rb) == 0 {
		return len(ra)
	}

	previous := make([]int, len(rb)+1)
	current := make([]int, len(rb)+1)
	for j := range previous {
		previous[j] = j
	}
	for i, ca := range ra {
		current[0] = i + 1
		for j, cb := range rb {
			insertion := previous[j+1] + 1
			deletion := current[j] + 1
			substitution := previous[j]
			if ca != cb {
				substitution++
			}
			current[j+1] = min(insertion, deletion, substitution)
		}
		previous, current = current, previous
	}
	return previous[len(rb)]
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
