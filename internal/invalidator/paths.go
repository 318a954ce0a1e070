package invalidator

import (
	"net/url"
	"strings"
)

const DefaultRootDocument = "index.html"

// EventKind is the coarse storage event type.
type EventKind string

const (
	Created EventKind = "created"
	Other   EventKind = "other"
)

// KindOf classifies an S3 event name such as "ObjectCreated:Put".
func KindOf(eventName string) EventKind {
	if strings.HasPrefix(eventName, "ObjectCreated:") || strings.HasPrefix(eventName, "s3:ObjectCreated:") {
		return Created
	}
	return Other
}

// Notification is one storage change record. Key is as delivered by S3,
// still URL-encoded.
type Notification struct {
	Bucket    string
	Key       string
	EventName string
}

func (n Notification) Kind() EventKind { return KindOf(n.EventName) }

// DecodeKey undoes S3's form encoding of object keys: %XX escapes and '+'
// for space. A key with a broken escape is used with only '+' decoded.
func DecodeKey(key string) (string, bool) {
	s, err := url.QueryUnescape(key)
	if err != nil {
		return strings.ReplaceAll(key, "+", " "), false
	}
	return s, true
}

// PathsFor maps one decoded key to its CDN paths. The root document is also
// served at "/", so it invalidates both.
func PathsFor(key, rootDocument string) []string {
	p := "/" + key
	if key == rootDocument {
		return []string{p, "/"}
	}
	return []string{p}
}

// Dedupe drops repeated paths, keeping the first occurrence of each.
func Dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
