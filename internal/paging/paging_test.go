package paging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Params
		want Params
	}{
		{"defaults", Params{}, Params{Page: 1, Limit: 20}},
		{"negative page", Params{Page: -3, Limit: 5}, Params{Page: 1, Limit: 5}},
		{"limit capped", Params{Page: 2, Limit: 1000}, Params{Page: 2, Limit: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize(20, 100))
		})
	}
}

func TestNewMeta(t *testing.T) {
	assert.Equal(t, Meta{Page: 1, Limit: 2, Total: 5, Pages: 3}, NewMeta(Params{Page: 1, Limit: 2}, 5))
	assert.Equal(t, 0, NewMeta(Params{Page: 1, Limit: 20}, 0).Pages)
}

func TestSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	assert.Equal(t, []int{1, 2}, Slice(items, Params{Page: 1, Limit: 2}))
	assert.Equal(t, []int{5}, Slice(items, Params{Page: 3, Limit: 2}))
	assert.Empty(t, Slice(items, Params{Page: 4, Limit: 2}))
}
