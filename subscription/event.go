package subscription

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// InboundEvent is the payload pushed by the build server.
type InboundEvent struct {
	Title string
	Body  string
	Tag   string
	Icon  string
	URL   string
	// Extra holds the fields not listed above, passed through untouched.
	Extra map[string]interface{}
}

var knownFields = []string{"title", "body", "tag", "icon", "url"}

// DecodeError reports a push message that is not a valid event.
type DecodeError struct {
	Body string
	Err  error
}

func (e *DecodeError) Error() string {
	return "cannot decode push message: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Cause lets errors.Cause reach the underlying error.
func (e *DecodeError) Cause() error {
	return e.Err
}

// DecodeEvent parses a push message body. A title is the only field an event
// cannot do without.
func DecodeEvent(body string) (InboundEvent, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return InboundEvent{}, &DecodeError{Body: body, Err: err}
	}
	if fields == nil {
		return InboundEvent{}, &DecodeError{Body: body, Err: errors.New("message is not a JSON object")}
	}

	event := InboundEvent{Extra: map[string]interface{}{}}
	targets := map[string]*string{
		"title": &event.Title,
		"body":  &event.Body,
		"tag":   &event.Tag,
		"icon":  &event.Icon,
		"url":   &event.URL,
	}
	for _, key := range knownFields {
		v, ok := fields[key]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return InboundEvent{}, &DecodeError{Body: body, Err: errors.Errorf("field %q is not a string", key)}
		}
		*targets[key] = s
		delete(fields, key)
	}
	for k, v := range fields {
		event.Extra[k] = v
	}

	if event.Title == "" {
		return InboundEvent{}, &DecodeError{Body: body, Err: errors.New("missing title")}
	}
	return event, nil
}
