// Package cors implements the origin gate shared by every inbound path.
//
// The policy is an allow-list of the site's own origin and its subdomains.
// There is no wildcard fallback: a missing or foreign Origin is rejected.
package cors

import "strings"

const (
	HeaderAllowOrigin      = "Access-Control-Allow-Origin"
	HeaderAllowHeaders     = "Access-Control-Allow-Headers"
	HeaderAllowMethods     = "Access-Control-Allow-Methods"
	HeaderAllowCredentials = "Access-Control-Allow-Credentials"

	allowHeaders = "Content-Type"
	allowMethods = "OPTIONS,PUT,POST"
)

// Policy allows https://<SiteDomain> and any origin ending in .<SiteDomain>.
type Policy struct {
	SiteDomain string
}

// New returns a Policy for the given site domain, e.g. "kingslanding.io".
func New(siteDomain string) Policy {
	return Policy{SiteDomain: strings.TrimPrefix(strings.ToLower(strings.TrimSpace(siteDomain)), ".")}
}

// CanonicalOrigin is the site's own origin.
func (p Policy) CanonicalOrigin() string { return "https://" + p.SiteDomain }

func (p Policy) suffix() string { return "." + p.SiteDomain }

// Allow returns the origin to echo back and whether it passed the gate.
func (p Policy) Allow(origin string) (string, bool) {
	if origin == "" || p.SiteDomain == "" {
		return "", false
	}
	if origin == p.CanonicalOrigin() || strings.HasSuffix(origin, p.suffix()) {
		return origin, true
	}
	return "", false
}

// Headers builds the CORS header set for an allowed origin. Every response
// that passed the gate is built from this map.
func Headers(allowedOrigin string) map[string]string {
	return map[string]string{
		HeaderAllowOrigin:      allowedOrigin,
		HeaderAllowHeaders:     allowHeaders,
		HeaderAllowMethods:     allowMethods,
		HeaderAllowCredentials: "true",
	}
}

// OriginHeader looks up the Origin header in an event header map, which may
// carry it under any casing depending on the front door.
func OriginHeader(headers map[string]string) string {
	if v, ok := headers["origin"]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, "origin") {
			return v
		}
	}
	return ""
}
