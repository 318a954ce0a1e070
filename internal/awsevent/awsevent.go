// Package awsevent converts aws-lambda-go events into component inputs and
// component responses back into Lambda proxy responses.
package awsevent

import (
	"bytes"
	"encoding/base64"
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"

	"github.com/keithlinneman/pagepush/internal/apiresp"
	"github.com/keithlinneman/pagepush/internal/invalidator"
	"github.com/keithlinneman/pagepush/internal/publisher"
)

// ProxyRequest is an API Gateway proxy event whose body is kept raw. Proxy
// integrations deliver the body as a JSON string, direct invokes may send it
// as an already-decoded object, and both must reach the publisher.
type ProxyRequest struct {
	events.APIGatewayProxyRequest
	// RawBody shadows the embedded string Body when decoding.
	RawBody json.RawMessage `json:"body"`
}

// BodyText is the body as the publisher reads it: a JSON string is unquoted,
// any other JSON value is passed through verbatim.
func (r ProxyRequest) BodyText() string {
	raw := bytes.TrimSpace(r.RawBody)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return r.APIGatewayProxyRequest.Body
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// Event is the proxy request with the body resolved to text.
func (r ProxyRequest) Event() events.APIGatewayProxyRequest {
	ev := r.APIGatewayProxyRequest
	ev.Body = r.BodyText()
	return ev
}

// PublishRequest maps an API Gateway proxy event onto a publisher request.
// Single-value headers win; multi-value headers only fill names that are
// missing. A body flagged base64 that fails to decode is passed on empty so
// the publisher reports it as malformed.
func PublishRequest(ev events.APIGatewayProxyRequest) publisher.Request {
	headers := make(map[string]string, len(ev.Headers)+len(ev.MultiValueHeaders))
	for k, vs := range ev.MultiValueHeaders {
		if len(vs) > 0 {
			headers[k] = vs[0]
		}
	}
	for k, v := range ev.Headers {
		headers[k] = v
	}

	body := ev.Body
	if ev.IsBase64Encoded {
		b, err := base64.StdEncoding.DecodeString(ev.Body)
		if err != nil {
			body = ""
		} else {
			body = string(b)
		}
	}

	return publisher.Request{
		HTTPMethod: ev.HTTPMethod,
		Headers:    headers,
		Body:       body,
	}
}

// ProxyResponse is the Lambda proxy form of a component response.
func ProxyResponse(r apiresp.Response) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: r.StatusCode,
		Headers:    r.Headers,
		Body:       r.Body,
	}
}

// Notifications flattens an S3 event. Keys stay URL-encoded; the
// invalidator decodes them.
func Notifications(ev events.S3Event) []invalidator.Notification {
	out := make([]invalidator.Notification, 0, len(ev.Records))
	for _, rec := range ev.Records {
		out = append(out, invalidator.Notification{
			Bucket:    rec.S3.Bucket.Name,
			Key:       rec.S3.Object.Key,
			EventName: rec.EventName,
		})
	}
	return out
}
