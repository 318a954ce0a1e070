// Package ratelimit provides per-IP token-bucket limiting for the self-hosted
// server, with background eviction and a cap on tracked addresses.
//
// It is in-memory and per instance. It blunts a single client hammering the
// publish endpoint (each publish is an S3 PUT) but does nothing against
// distributed traffic; that belongs to the CDN or WAF in front.
package ratelimit
