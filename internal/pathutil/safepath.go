// Package pathutil checks caller-supplied names before they become object
// keys and CDN paths.
package pathutil

import "strings"

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// ValidObjectName reports whether name can be appended to a key prefix
// as-is. CDNs normalize dot segments and repeated slashes, so a stored key
// containing them would be unreachable at the path the invalidator derives.
func ValidObjectName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return false
	}
	if strings.Contains(name, "//") || HasDotSegments(name) {
		return false
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f || r == '\\' {
			return false
		}
	}
	return true
}
