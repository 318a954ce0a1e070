package awsevent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/keithlinneman/pagepush/internal/apiresp"
	"github.com/keithlinneman/pagepush/internal/cors"
	"github.com/keithlinneman/pagepush/internal/objstore"
	"github.com/keithlinneman/pagepush/internal/publisher"
)

type memStore struct {
	puts []objstore.Object
}

func (m *memStore) Put(ctx context.Context, obj objstore.Object) error {
	m.puts = append(m.puts, obj)
	return nil
}

func newPublisher(t *testing.T, store *memStore) *publisher.Publisher {
	t.Helper()
	p, err := publisher.New(publisher.Options{
		Store:  store,
		Bucket: "kingslanding.io",
		CORS:   cors.New("kingslanding.io"),
	})
	if err != nil {
		t.Fatalf("publisher.New: %v", err)
	}
	return p
}

func TestPublishRequest_Plain(t *testing.T) {
	req := PublishRequest(events.APIGatewayProxyRequest{
		HTTPMethod: "POST",
		Headers:    map[string]string{"origin": "https://kingslanding.io"},
		Body:       `{"filename":"a.html","html":"<p>x</p>"}`,
	})

	if req.HTTPMethod != "POST" {
		t.Fatalf("method = %q", req.HTTPMethod)
	}
	if req.Headers["origin"] != "https://kingslanding.io" {
		t.Fatalf("headers = %v", req.Headers)
	}
	if req.Body != `{"filename":"a.html","html":"<p>x</p>"}` {
		t.Fatalf("body = %q", req.Body)
	}
}

func TestPublishRequest_Base64(t *testing.T) {
	raw := `{"filename":"a.html","html":"<p>x</p>"}`
	req := PublishRequest(events.APIGatewayProxyRequest{
		HTTPMethod:      "PUT",
		Body:            base64.StdEncoding.EncodeToString([]byte(raw)),
		IsBase64Encoded: true,
	})
	if req.Body != raw {
		t.Fatalf("body = %q", req.Body)
	}

	bad := PublishRequest(events.APIGatewayProxyRequest{Body: "!!!", IsBase64Encoded: true})
	if bad.Body != "" {
		t.Fatalf("undecodable body = %q, want empty", bad.Body)
	}
}

func TestPublishRequest_MultiValueHeaders(t *testing.T) {
	req := PublishRequest(events.APIGatewayProxyRequest{
		Headers: map[string]string{"Origin": "https://a.kingslanding.io"},
		MultiValueHeaders: map[string][]string{
			"Origin":       {"https://evil.example"},
			"Content-Type": {"application/json", "text/plain"},
			"X-Empty":      {},
		},
	})
	if req.Headers["Origin"] != "https://a.kingslanding.io" {
		t.Fatalf("single-value header must win, got %q", req.Headers["Origin"])
	}
	if req.Headers["Content-Type"] != "application/json" {
		t.Fatalf("Content-Type = %q", req.Headers["Content-Type"])
	}
	if _, ok := req.Headers["X-Empty"]; ok {
		t.Fatal("empty multi-value header should be dropped")
	}
}

func TestProxyRequest_BodyShapes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		status  int
		puts    int
	}{
		{
			name:    "object body",
			payload: `{"httpMethod":"PUT","headers":{"origin":"https://kingslanding.io"},"body":{"filename":"a.html","html":"<p>x</p>"}}`,
			status:  http.StatusOK,
			puts:    1,
		},
		{
			name:    "string body",
			payload: `{"httpMethod":"PUT","headers":{"origin":"https://kingslanding.io"},"body":"{\"filename\":\"a.html\",\"html\":\"<p>x</p>\"}"}`,
			status:  http.StatusOK,
			puts:    1,
		},
		{
			name:    "double encoded string body",
			payload: `{"httpMethod":"PUT","headers":{"origin":"https://kingslanding.io"},"body":"\"{\\\"filename\\\":\\\"a.html\\\",\\\"html\\\":\\\"<p>x</p>\\\"}\""}`,
			status:  http.StatusOK,
			puts:    1,
		},
		{
			name:    "object body missing html",
			payload: `{"httpMethod":"PUT","headers":{"origin":"https://kingslanding.io"},"body":{"filename":"a.html"}}`,
			status:  http.StatusBadRequest,
		},
		{
			name:    "array body",
			payload: `{"httpMethod":"PUT","headers":{"origin":"https://kingslanding.io"},"body":["a.html"]}`,
			status:  http.StatusBadRequest,
		},
		{
			name:    "null body",
			payload: `{"httpMethod":"PUT","headers":{"origin":"https://kingslanding.io"},"body":null}`,
			status:  http.StatusBadRequest,
		},
		{
			name:    "no body",
			payload: `{"httpMethod":"PUT","headers":{"origin":"https://kingslanding.io"}}`,
			status:  http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ev ProxyRequest
			if err := json.Unmarshal([]byte(tt.payload), &ev); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			store := &memStore{}
			resp := ProxyResponse(newPublisher(t, store).Publish(context.Background(), PublishRequest(ev.Event())))

			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, tt.status, resp.Body)
			}
			if resp.Headers[cors.HeaderAllowOrigin] != "https://kingslanding.io" {
				t.Fatalf("missing CORS headers: %v", resp.Headers)
			}
			if len(store.puts) != tt.puts {
				t.Fatalf("puts = %d, want %d", len(store.puts), tt.puts)
			}
			if tt.puts == 1 && store.puts[0].Key != "pages/a.html" {
				t.Fatalf("key = %q", store.puts[0].Key)
			}
		})
	}
}

func TestProxyRequest_ObjectBodyVerbatim(t *testing.T) {
	var ev ProxyRequest
	payload := `{"httpMethod":"POST","requestContext":{"requestId":"r-1"},"body": {"filename":"a.html","html":"<p>x</p>"} }`
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		t.Fatal(err)
	}
	if got := ev.BodyText(); got != `{"filename":"a.html","html":"<p>x</p>"}` {
		t.Fatalf("BodyText = %q", got)
	}
	if ev.HTTPMethod != "POST" || ev.RequestContext.RequestID != "r-1" {
		t.Fatalf("event fields lost: %+v", ev.APIGatewayProxyRequest)
	}
}

func TestProxyRequest_Base64StringBody(t *testing.T) {
	raw := `{"filename":"a.html","html":"<p>x</p>"}`
	enc, _ := json.Marshal(base64.StdEncoding.EncodeToString([]byte(raw)))
	payload := `{"httpMethod":"PUT","isBase64Encoded":true,"body":` + string(enc) + `}`

	var ev ProxyRequest
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		t.Fatal(err)
	}
	if got := PublishRequest(ev.Event()).Body; got != raw {
		t.Fatalf("body = %q", got)
	}
}

func TestProxyRequest_BuiltInGo(t *testing.T) {
	ev := ProxyRequest{APIGatewayProxyRequest: events.APIGatewayProxyRequest{Body: "abc"}}
	if got := ev.BodyText(); got != "abc" {
		t.Fatalf("BodyText = %q, want the embedded body", got)
	}
}

func TestProxyResponse(t *testing.T) {
	r := apiresp.JSON(http.StatusForbidden, nil, apiresp.Message{Message: "Forbidden: Origin not allowed"})
	out := ProxyResponse(r)

	if out.StatusCode != http.StatusForbidden || out.Body != r.Body {
		t.Fatalf("out = %+v", out)
	}
	if out.Headers["Content-Type"] != apiresp.ContentTypeJSON {
		t.Fatalf("headers = %v", out.Headers)
	}
	if out.IsBase64Encoded {
		t.Fatal("JSON bodies are never base64")
	}
}

// a trimmed S3 notification as delivered to Lambda
const s3Notification = `{
  "Records": [
    {
      "eventSource": "aws:s3",
      "eventName": "ObjectCreated:Put",
      "s3": {
        "bucket": {"name": "kingslanding.io"},
        "object": {"key": "pages/my+page.html", "size": 42}
      }
    },
    {
      "eventSource": "aws:s3",
      "eventName": "ObjectRemoved:Delete",
      "s3": {
        "bucket": {"name": "kingslanding.io"},
        "object": {"key": "index.html"}
      }
    }
  ]
}`

func TestNotifications(t *testing.T) {
	var ev events.S3Event
	if err := json.Unmarshal([]byte(s3Notification), &ev); err != nil {
		t.Fatal(err)
	}

	got := Notifications(ev)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Key != "pages/my+page.html" {
		t.Fatalf("key must stay encoded, got %q", got[0].Key)
	}
	if got[0].Bucket != "kingslanding.io" || got[0].EventName != "ObjectCreated:Put" {
		t.Fatalf("first = %+v", got[0])
	}
	if got[1].EventName != "ObjectRemoved:Delete" {
		t.Fatalf("second = %+v", got[1])
	}
}

func TestNotifications_Empty(t *testing.T) {
	if got := Notifications(events.S3Event{}); len(got) != 0 {
		t.Fatalf("got %v", got)
	}
}
