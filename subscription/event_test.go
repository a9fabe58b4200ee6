package subscription

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	event, err := DecodeEvent(`{"title":"Build failed","body":"Project X [42]","tag":"x1","icon":"failed.png","url":"/viewType.html?buildTypeId=X","timeout":10}`)
	require.NoError(t, err)

	assert.Equal(t, "Build failed", event.Title)
	assert.Equal(t, "Project X [42]", event.Body)
	assert.Equal(t, "x1", event.Tag)
	assert.Equal(t, "failed.png", event.Icon)
	assert.Equal(t, "/viewType.html?buildTypeId=X", event.URL)
	assert.Equal(t, map[string]interface{}{"timeout": float64(10)}, event.Extra)
}

func TestDecodeEventOptionalFields(t *testing.T) {
	event, err := DecodeEvent(`{"title":"Build started","body":null}`)
	require.NoError(t, err)

	assert.Equal(t, "Build started", event.Title)
	assert.Empty(t, event.Body)
	assert.Empty(t, event.Extra)
}

func TestDecodeEventErrors(t *testing.T) {
	tests := map[string]struct {
		body        string
		expectedErr string
	}{
		"malformed json": {
			body:        `{"title":`,
			expectedErr: "cannot decode push message: unexpected end of JSON input",
		},
		"not an object": {
			body:        `["Build failed"]`,
			expectedErr: "cannot decode push message: json: cannot unmarshal array into Go value of type map[string]interface {}",
		},
		"null": {
			body:        `null`,
			expectedErr: "cannot decode push message: message is not a JSON object",
		},
		"missing title": {
			body:        `{"body":"Project X"}`,
			expectedErr: "cannot decode push message: missing title",
		},
		"wrong field type": {
			body:        `{"title":"Build failed","icon":3}`,
			expectedErr: `cannot decode push message: field "icon" is not a string`,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEvent(test.body)
			require.Error(t, err)
			assert.EqualError(t, err, test.expectedErr)

			decodeErr := &DecodeError{}
			require.True(t, errors.As(err, &decodeErr))
			assert.Equal(t, test.body, decodeErr.Body)
		})
	}
}

func TestDecodeErrorCause(t *testing.T) {
	_, err := DecodeEvent(`{`)

	var syntaxErr *json.SyntaxError
	assert.True(t, errors.As(errors.Cause(err), &syntaxErr))
}
