// Package normalize cleans the heterogeneous identity values that arrive
// from ISE logs and the asset inventory so they can be compared directly:
// MAC addresses, IPv4 addresses, hostnames and last-seen timestamps.
package normalize

import (
	"net/netip"
	"regexp"
	"strings"
	"time"
)

var (
	macSeparators = regexp.MustCompile(`[:\-.\s]`)
	macHex        = regexp.MustCompile(`^[0-9a-f]{12}$`)
	hostnameChars = regexp.MustCompile(`[^a-z0-9\-.]`)
)

// MAC canonicalizes a MAC address to lower-case colon-separated form
// ("aa:bb:cc:00:11:22"). Accepts colon, dash, dot and bare-hex inputs.
// Returns false for anything that is not 12 hex digits after cleanup.
func MAC(s string) (string, bool) {
	cleaned := macSeparators.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "")
	if !macHex.MatchString(cleaned) {
		return "", false
	}
	parts := make([]string, 0, 6)
	for i := 0; i < 12; i += 2 {
		parts = append(parts, cleaned[i:i+2])
	}
	return strings.Join(parts, ":"), true
}

// IP validates and canonicalizes an IP address string.
func IP(s string) (string, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return addr.String(), true
}

// Hostname lowercases and strips characters that are not valid in a
// hostname. Returns false when nothing usable remains.
func Hostname(s string) (string, bool) {
	h := hostnameChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "")
	h = strings.Trim(h, ".")
	if h == "" {
		return "", false
	}
	return h, true
}

// ShortHostname reduces a hostname to its first label, so FQDNs from the
// inventory ("wkstn-42.corp") compare equal to the short endpoint names
// ISE reports ("WKSTN-42").
func ShortHostname(s string) (string, bool) {
	h, ok := Hostname(s)
	if !ok {
		return "", false
	}
	if i := strings.IndexByte(h, '.'); i > 0 {
		h = h[:i]
	}
	return h, true
}

// lastSeenLayouts covers the date formats the inventory has been observed
// to emit.
var lastSeenLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// LastSeen parses an inventory last-seen value. Values arrive from JSON as
// strings, numbers (unix seconds) or lists; lists use their first element.
func LastSeen(v any) (time.Time, bool) {
	switch val := v.(type) {
	case nil:
		return time.Time{}, false
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range lastSeenLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		return time.Time{}, false
	case float64:
		if val <= 0 {
			return time.Time{}, false
		}
		return time.Unix(int64(val), 0).UTC(), true
	case int64:
		if val <= 0 {
			return time.Time{}, false
		}
		return time.Unix(val, 0).UTC(), true
	case []any:
		if len(val) == 0 {
			return time.Time{}, false
		}
		return LastSeen(val[0])
	default:
		return time.Time{}, false
	}
}

// StringList coerces a JSON value that may be a single string or a list of
// strings into a []string, skipping non-string members.
func StringList(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return val
	default:
		return nil
	}
}
