package diagnostic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multiFileReport = `{
  "message": "errors in multiple files",
  "severity": "error",
  "causes": [],
  "labels": [],
  "related": [
    {
      "message": "name 'strings' is not defined",
      "code": "protox::name_not_found",
      "severity": "error",
      "causes": [],
      "filename": "test.proto",
      "labels": [{"label": "found here", "span": {"offset": 69, "length": 7}}],
      "related": [
        {
          "message": "name 'fold' is not defined",
          "severity": "error",
          "causes": [],
          "filename": "test.proto",
          "labels": [{"label": "found here", "span": {"offset": 95, "length": 4}}],
          "related": []
        }
      ]
    },
    {
      "message": "expected an integer, but found '='",
      "severity": "error",
      "causes": [],
      "filename": "test2.proto",
      "labels": [{"label": "found here", "span": {"offset": 110, "length": 1}}],
      "related": []
    }
  ]
}`

func TestParseJSON_MultiFile(t *testing.T) {
	root, err := ParseJSON([]byte(multiFileReport))
	require.NoError(t, err)

	flat := Flatten(root)
	require.Len(t, flat, 3)

	assert.Equal(t, "name 'strings' is not defined", flat[0].Message)
	assert.Equal(t, "test.proto", flat[0].Filename)
	assert.Equal(t, []Label{{Label: "found here", Span: Span{Offset: 69, Length: 7}}}, flat[0].Labels)

	assert.Equal(t, "name 'fold' is not defined", flat[1].Message)
	assert.Equal(t, 4, flat[1].Labels[0].Span.Length)

	assert.Equal(t, "expected an integer, but found '='", flat[2].Message)
	assert.Equal(t, "test2.proto", flat[2].Filename)

	assert.Equal(t, MultipleFilesMessage, Summarize(flat))
}

func TestParseJSON_MissingOptionalFields(t *testing.T) {
	root, err := ParseJSON([]byte(`{"message": "error opening file", "severity": "error", "causes": ["Permission denied (os error 13)"]}`))
	require.NoError(t, err)

	assert.Equal(t, "", root.Filename)
	assert.Empty(t, root.Labels)
	assert.Equal(t, []string{"Permission denied (os error 13)"}, root.Causes)
}

func TestParseJSON_NullCausesBecomeEmpty(t *testing.T) {
	root, err := ParseJSON([]byte(`{"message": "m", "severity": "error"}`))
	require.NoError(t, err)
	assert.NotNil(t, root.Causes)
}

func TestParseJSON_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not json", input: `{`},
		{name: "negative offset", input: `{"message":"m","labels":[{"span":{"offset":-1,"length":1}}]}`},
		{name: "negative nested length", input: `{"message":"m","related":[{"message":"n","labels":[{"span":{"offset":1,"length":-2}}]}]}`},
		{name: "null related", input: `{"message":"m","related":[null]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJSON([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestEncodeJSON_RoundTrip(t *testing.T) {
	root, err := ParseJSON([]byte(multiFileReport))
	require.NoError(t, err)

	data, err := EncodeJSON(root)
	require.NoError(t, err)

	again, err := ParseJSON(data)
	require.NoError(t, err)
	assert.Equal(t, root, again)
}
