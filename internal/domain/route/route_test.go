package route

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExactResolve(t *testing.T) {
	r := NewExact()
	require.NoError(t, r.Register("aaa", "test.js"))

	tests := []struct {
		path   string
		want   string
		wantOk bool
	}{
		{path: "aaa", want: "test.js", wantOk: true},
		{path: "AAA"},
		{path: "/aaa"},
		{path: "aaa/bbb"},
		{path: ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := r.Resolve(tt.path)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTemplateResolveFirstMatchWins(t *testing.T) {
	r := NewTemplate()
	routes := []Entry{
		{Name: "aaa", Src: "test1.js"},
		{Name: "aaa/BBB", Src: "test2_aaa.js"},
		{Name: `{id: .\d+}/BBB`, Src: "test2_num.js"},
		{Name: "{id}/BBB", Src: "test2.js"},
		{Name: "aaa/{id}/view", Src: "test3.js"},
		{Name: "{aaa}BBB123", Src: "test4.js"},
		{Name: "aaa{id}", Src: "test5.js"},
	}
	for _, rt := range routes {
		require.NoError(t, r.Register(rt.Name, rt.Src))
	}
	assert.Equal(t, len(routes), r.Len())

	tests := []struct {
		path   string
		want   string
		wantOk bool
	}{
		{path: "aaa", want: "test1.js", wantOk: true},
		{path: "aaa/BBB", want: "test2_aaa.js", wantOk: true},
		{path: "1234/BBB", want: "test2_num.js", wantOk: true},
		{path: "12aa/BBB", want: "test2.js", wantOk: true},
		{path: "aaa/xyz/view", want: "test3.js", wantOk: true},
		{path: "{aaaBBB123", want: "test4.js", wantOk: true},
		{path: "aaaBBB", want: "test5.js", wantOk: true},
		{path: "/aaa"},
		{path: "aaa/1234/edit"},
		{path: ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := r.Resolve(tt.path)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTemplateNestedBraces(t *testing.T) {
	r := NewTemplate()
	require.NoError(t, r.Register(`item/{code: \d{3}}`, "item.js"))

	got, ok := r.Resolve("item/123")
	assert.True(t, ok)
	assert.Equal(t, "item.js", got)

	_, ok = r.Resolve("item/1234")
	assert.False(t, ok)
}

func TestTemplateRegistrationErrors(t *testing.T) {
	tests := []string{
		"{id/bbb",
		"{}/x",
		"{id: }",
		"{id: [a-}",
		"a/{bad name}",
	}

	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			r := NewTemplate()
			err := r.Register(name, "x.js")
			require.Error(t, err)

			var regErr *RegistrationError
			require.True(t, errors.As(err, &regErr))
			assert.Equal(t, name, regErr.Name)
			assert.Equal(t, "x.js", regErr.Src)
			assert.NotNil(t, errors.Unwrap(err))
			assert.Contains(t, err.Error(), "Route registration failed. (name="+name)
			assert.Equal(t, 0, r.Len())
		})
	}
}

func TestParseXML(t *testing.T) {
	doc := `<?xml version="1.0" encoding="utf-8" ?>
<service language="JavaScript" subject="engine" xmlns="urn:x-personium:xmlns">
  <path name="hello" src="hello.js"/>
  <path name="{id}/view" src="view.js"/>
</service>`

	table, err := Parse([]byte(doc), NewTemplate())
	require.NoError(t, err)
	assert.Equal(t, "engine", table.Subject())

	src, ok := table.Resolve("hello")
	assert.True(t, ok)
	assert.Equal(t, "hello.js", src)

	src, ok = table.Resolve("42/view")
	assert.True(t, ok)
	assert.Equal(t, "view.js", src)
}

func TestParseYAML(t *testing.T) {
	doc := `
subject: engine
paths:
  - name: hello
    src: hello.js
`
	table, err := Parse([]byte(doc), NewExact())
	require.NoError(t, err)
	assert.Equal(t, "engine", table.Subject())

	src, ok := table.Resolve("hello")
	assert.True(t, ok)
	assert.Equal(t, "hello.js", src)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(nil, NewExact())
	assert.Error(t, err)

	_, err = Parse([]byte("<service><path"), NewExact())
	assert.Error(t, err)

	bad := `<service subject="s"><path name="{id" src="x.js"/></service>`
	_, err = Parse([]byte(bad), NewTemplate())
	var regErr *RegistrationError
	assert.True(t, errors.As(err, &regErr))
}

func TestNewResolver(t *testing.T) {
	r, err := NewResolver("exact")
	require.NoError(t, err)
	assert.IsType(t, &Exact{}, r)

	r, err = NewResolver("")
	require.NoError(t, err)
	assert.IsType(t, &Template{}, r)

	_, err = NewResolver("glob")
	assert.Error(t, err)
}
