package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseQuery(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{"empty", "", map[string]string{}},
		{"pairs", "a=1&b=2", map[string]string{"a": "1", "b": "2"}},
		{"last wins", "ms=1&ms=9", map[string]string{"ms": "9"}},
		{"key only", "flag&x=", map[string]string{"flag": "", "x": ""}},
		{"empty tokens", "&&a=1&", map[string]string{"a": "1"}},
		{"percent", "na%20me=a%2Bb&sp=a+b", map[string]string{"na me": "a+b", "sp": "a b"}},
		{"bad percent kept", "x=%zz&%g=1", map[string]string{"x": "%zz", "%g": "1"}},
		{"leading equals", "=v", map[string]string{"=v": ""}},
		{"value with equals", "k=a=b", map[string]string{"k": "a=b"}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, ParseQuery(c.raw))
		})
	}
}

func TestSplitTarget(t *testing.T) {
	path, q := splitTarget("/echo?size=1?x")
	assert.Equal(t, "/echo", path)
	assert.Equal(t, "size=1?x", q)

	path, q = splitTarget("/plain")
	assert.Equal(t, "/plain", path)
	assert.Empty(t, q)
}
