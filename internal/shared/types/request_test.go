package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCellURL(t *testing.T) {
	tests := []struct {
		name      string
		base      string
		pathBased bool
		want      string
	}{
		{name: "path based", base: "https://unit.example/", pathBased: true, want: "https://unit.example/cell1/"},
		{name: "path based no slash", base: "https://unit.example", pathBased: true, want: "https://unit.example/cell1/"},
		{name: "subdomain", base: "https://unit.example/", want: "https://cell1.unit.example/"},
		{name: "subdomain with port", base: "http://unit.example:9998/", want: "http://cell1.unit.example:9998/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := RequestMeta{BaseURL: tt.base, Cell: "cell1", Box: "box1", PathBasedCellURL: tt.pathBased}
			assert.Equal(t, tt.want, m.CellURL())
			assert.Equal(t, tt.want+"box1/", m.BoxURL())
		})
	}
}
