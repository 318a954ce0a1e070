// Package apiresp is the {statusCode, headers, body} envelope both handlers
// return, independent of the front door that delivered the event.
package apiresp

import (
	"encoding/json"
	"maps"
)

const ContentTypeJSON = "application/json"

type Response struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body"`
}

// JSON encodes v as the body. headers are copied, never mutated, and get a
// JSON Content-Type.
func JSON(status int, headers map[string]string, v any) Response {
	b, err := json.Marshal(v)
	if err != nil {
		// only reachable with unmarshalable values, which callers never pass
		b = []byte(`{"error":"response encoding failed"}`)
	}
	h := make(map[string]string, len(headers)+1)
	maps.Copy(h, headers)
	h["Content-Type"] = ContentTypeJSON
	return Response{StatusCode: status, Headers: h, Body: string(b)}
}

// Empty is a bodyless response, used for preflight.
func Empty(status int, headers map[string]string) Response {
	return Response{StatusCode: status, Headers: maps.Clone(headers), Body: ""}
}

// Message is the common `{"message": ...}` body.
type Message struct {
	Message string `json:"message"`
}

// ErrorBody is the common `{"error": ...}` body.
type ErrorBody struct {
	Error string `json:"error"`
}

// Decode unmarshals the response body into v, for tests and adapters.
func (r Response) Decode(v any) error {
	return json.Unmarshal([]byte(r.Body), v)
}
