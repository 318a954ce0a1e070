package publisher

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/keithlinneman/pagepush/internal/fault"
	"github.com/keithlinneman/pagepush/internal/pathutil"
)

// Request is the HTTP-shaped event delivered by the front door.
type Request struct {
	HTTPMethod string
	Headers    map[string]string
	// Body is the JSON page request. A JSON string holding the encoded
	// object is accepted too, some front doors double-encode.
	Body string
}

// PageRequest is the decoded body. HTML is the canonical content field.
type PageRequest struct {
	Filename string `json:"filename" validate:"required"`
	HTML     string `json:"html" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names so error messages match what the caller sent
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// parseBody decodes and validates a page request. Errors are *fault.Error
// of kind MalformedInput or MissingField.
func parseBody(body string) (PageRequest, error) {
	raw := strings.TrimSpace(body)
	if raw == "" {
		return PageRequest{}, fault.New(fault.MalformedInput, "Invalid JSON body")
	}

	if strings.HasPrefix(raw, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(raw), &inner); err != nil {
			return PageRequest{}, fault.Wrap(fault.MalformedInput, "Invalid JSON body", err)
		}
		raw = strings.TrimSpace(inner)
	}

	var pr PageRequest
	if err := json.Unmarshal([]byte(raw), &pr); err != nil {
		return PageRequest{}, fault.Wrap(fault.MalformedInput, "Invalid JSON body", err)
	}

	if err := validate.Struct(pr); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return PageRequest{}, fault.Wrap(fault.MalformedInput, "Invalid JSON body", err)
		}
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		return PageRequest{}, fault.Missing(fields...)
	}
	if !pathutil.ValidObjectName(pr.Filename) {
		return PageRequest{}, fault.New(fault.MalformedInput, "Invalid filename")
	}
	return pr, nil
}

// missingMessage renders the caller-facing message for a MissingField fault.
func missingMessage(fields []string) string {
	q := make([]string, len(fields))
	for i, f := range fields {
		q[i] = "'" + f + "'"
	}
	return "Missing " + strings.Join(q, " and ") + " in request body"
}
