package brand

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Entry describes a protected brand: the keywords a squatter would reach for
// and the payment addresses the brand legitimately operates.
type Entry struct {
	Keywords    []string `json:"keywords"`
	AllowedVPAs []string `json:"allowed_vpas"`
}

// Registry holds the canonical brand database. Brand iteration is sorted so
// detection results are reproducible across runs.
type Registry struct {
	names   []string
	entries map[string]entry
}

type entry struct {
	keywords []string
	allowed  map[string]struct{}
}

// NewRegistry builds a registry from the supplied entries. Keywords are
// lowercased and deduplicated; empty keywords are dropped.
func NewRegistry(entries map[string]Entry) *Registry {
	reg := &Registry{entries: make(map[string]entry, len(entries))}
	for name, raw := range entries {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		keywords := make([]string, 0, len(raw.Keywords))
		seen := make(map[string]struct{}, len(raw.Keywords))
		for _, keyword := range raw.Keywords {
			keyword = strings.ToLower(strings.TrimSpace(keyword))
			if keyword == "" {
				continue
			}
			if _, ok := seen[keyword]; ok {
				continue
			}
			seen[keyword] = struct{}{}
			keywords = append(keywords, keyword)
		}
		sort.Strings(keywords)
		allowed := make(map[string]struct{}, len(raw.AllowedVPAs))
		for _, vpa := range raw.AllowedVPAs {
			vpa = strings.TrimSpace(vpa)
			if vpa == "" {
				continue
			}
			allowed[vpa] = struct{}{}
		}
		reg.entries[name] = entry{keywords: keywords, allowed: allowed}
		reg.names = append(reg.names, name)
	}
	sort.Strings(reg.names)
	return reg
}

// LoadRegistry reads the brand database from a JSON file. A missing file
// yields an empty registry and no error so impersonation checks degrade to a
// no-op instead of blocking startup. A malformed file also yields an empty
// registry, with the parse error returned for logging.
func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewRegistry(nil), nil
		}
		return NewRegistry(nil), fmt.Errorf("brand: read registry %s: %w", path, err)
	}
	var entries map[string]Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return NewRegistry(nil), fmt.Errorf("brand: parse registry %s: %w", path, err)
	}
	return NewRegistry(entries), nil
}

// Brands returns the registered brand names in sorted order.
func (r *Registry) Brands() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// Len reports the number of registered brands.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}
