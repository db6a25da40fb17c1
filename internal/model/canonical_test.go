package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"string", `"hello"`, `"hello"`},
		{"empty string", `""`, `""`},
		{"int", `42`, `42`},
		{"negative int", `-100`, `-100`},
		{"max int64", `9223372036854775807`, `9223372036854775807`},
		{"null", `null`, `null`},
		{"bool", `true`, `true`},
		{"empty array", `[ ]`, `[]`},
		{"empty object", `{ }`, `{}`},
		{"whitespace", `{ "a" : [ 1 , 2 ] }`, `{"a":[1,2]}`},
		{"float", `1.5`, `1.5`},
		{"integral float", `1.0`, `1`},
		{"exponent int", `1e2`, `100`},
		{"small float", `0.0000001`, `1e-7`},
		{"large float", `1e21`, `1e+21`},
		{"negative zero", `-0.0`, `0`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Canonicalize([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestCanonicalizeSortedKeys(t *testing.T) {
	result, err := Canonicalize([]byte(`{"zebra":1,"alpha":2,"beta":{"y":1,"x":2}}`))
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":{"x":2,"y":1},"zebra":1}`, string(result))
}

func TestCanonicalizeUTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes as surrogates 0xD83D 0xDE00, which sort before U+FB01
	// in UTF-16 even though the UTF-8 bytes sort after.
	result, err := Canonicalize([]byte(`{"\ufb01":1,"\ud83d\ude00":2}`))
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\uFB01\":1}", string(result))
}

func TestCanonicalizeNoHTMLEscape(t *testing.T) {
	result, err := Canonicalize([]byte(`"<a href=\"x\">&</a>"`))
	require.NoError(t, err)
	assert.Equal(t, `"<a href=\"x\">&</a>"`, string(result))
}

func TestCanonicalizeNFC(t *testing.T) {
	// "e" + combining acute accent normalizes to U+00E9.
	result, err := Canonicalize([]byte(`"e\u0301"`))
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(result))
}

func TestCanonicalizeLineSeparators(t *testing.T) {
	result, err := Canonicalize([]byte(`"a\u2028b\u2029c"`))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))

	// An escaped backslash followed by the text u2028 stays as written.
	result, err = Canonicalize([]byte(`"\\u2028"`))
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(result))
}

func TestCanonicalizeErrors(t *testing.T) {
	for _, input := range []string{``, `{`, `{"a":1} {"b":2}`, `nope`} {
		_, err := Canonicalize([]byte(input))
		assert.Error(t, err, "input %q", input)
	}
}

func TestMarshalCanonical(t *testing.T) {
	result, err := MarshalCanonical(map[string]any{"b": 1, "a": []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":["x"],"b":1}`, string(result))
}

func TestCompareUTF16(t *testing.T) {
	assert.Equal(t, 0, compareUTF16("abc", "abc"))
	assert.Equal(t, -1, compareUTF16("ab", "abc"))
	assert.Equal(t, 1, compareUTF16("b", "a"))
	assert.Equal(t, -1, compareUTF16("\U0001F600", "\uFB01"))
}
