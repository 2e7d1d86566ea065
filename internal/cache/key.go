package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"vidgate/internal/upstream"
)

const keyPrefix = "cache:"

// Key identifies one cached upstream response: the endpoint class plus
// the caller's query parameters.
type Key struct {
	Class  upstream.EndpointClass
	Params url.Values
}

// String renders the deterministic key. Parameters are sorted so two
// requests with the same parameters in different order share an entry.
// Names and values are URL-escaped: the ":" and "=" separators and glob
// metacharacters cannot leak out of a value into the key structure or
// into pattern matching.
//
// Format: cache:<class>:<param>=<value>:...
func (k Key) String() string {
	parts := []string{string(k.Class)}

	if len(k.Params) > 0 {
		names := make([]string, 0, len(k.Params))
		for name := range k.Params {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			values := append([]string(nil), k.Params[name]...)
			sort.Strings(values)
			for _, v := range values {
				parts = append(parts, fmt.Sprintf("%s=%s", url.QueryEscape(name), url.QueryEscape(v)))
			}
		}
	}

	return keyPrefix + strings.Join(parts, ":")
}

// ClassPattern is the glob matching every key of one class. No class
// name is a prefix of another, so the bare-class key (no parameters)
// matches too.
func ClassPattern(class upstream.EndpointClass) string {
	return keyPrefix + string(class) + "*"
}

// AllPattern is the glob matching every cache key.
func AllPattern() string {
	return keyPrefix + "*"
}
