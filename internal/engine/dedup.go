package engine

import (
	"net/url"
	"sort"
	"strings"

	"github.com/IshaanNene/ShelfStalk/internal/types"
)

// Visited records the canonical form of every URL a run has popped, so that
// each page is fetched at most once.
type Visited struct {
	seen map[string]struct{}
}

// NewVisited creates an empty visited set.
func NewVisited() *Visited {
	return &Visited{seen: make(map[string]struct{})}
}

// Has reports whether rawURL has been visited.
func (v *Visited) Has(rawURL string) bool {
	_, ok := v.seen[CanonicalizeURL(rawURL)]
	return ok
}

// Mark records rawURL. It reports false when the URL was already present.
func (v *Visited) Mark(rawURL string) bool {
	key := CanonicalizeURL(rawURL)
	if _, ok := v.seen[key]; ok {
		return false
	}
	v.seen[key] = struct{}{}
	return true
}

// Len returns the number of visited URLs.
func (v *Visited) Len() int {
	return len(v.seen)
}

// CanonicalizeURL normalizes a URL for visit bookkeeping: scheme and host
// lowercased, fragment and default port removed, query parameters sorted,
// trailing slash trimmed except for the root path.
func CanonicalizeURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return rawURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	if port := u.Port(); (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = u.Hostname()
	}

	if u.RawQuery != "" {
		params := u.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var pairs []string
		for _, k := range keys {
			vals := params[k]
			sort.Strings(vals)
			for _, v := range vals {
				pairs = append(pairs, url.QueryEscape(k)+"="+url.QueryEscape(v))
			}
		}
		u.RawQuery = strings.Join(pairs, "&")
	}

	switch {
	case u.Path == "":
		u.Path = "/"
	case u.Path != "/" && strings.HasSuffix(u.Path, "/"):
		u.Path = strings.TrimRight(u.Path, "/")
	}
	return u.String()
}

// Accumulator holds a run's products in discovery order, unique on the
// exact (url, title) pair.
type Accumulator struct {
	products []types.Product
	keys     map[types.ProductKey]struct{}
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{keys: make(map[types.ProductKey]struct{})}
}

// Merge appends every candidate whose key is new and returns how many were
// added. Merging the same candidates again adds nothing.
func (a *Accumulator) Merge(candidates []types.Product) int {
	added := 0
	for i := range candidates {
		key := candidates[i].Key()
		if _, dup := a.keys[key]; dup {
			continue
		}
		a.keys[key] = struct{}{}
		a.products = append(a.products, *candidates[i].Clone())
		added++
	}
	return added
}

// Len returns the number of unique products.
func (a *Accumulator) Len() int {
	return len(a.products)
}

// Products returns a copy of the accumulated products.
func (a *Accumulator) Products() []types.Product {
	out := make([]types.Product, len(a.products))
	copy(out, a.products)
	return out
}
