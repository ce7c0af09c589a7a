package service

import (
	"reflect"
	"testing"
)

func TestSplitIDs(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b ", []string{"a", "b"}},
		{",,a,", []string{"a"}},
	}
	for _, tt := range tests {
		got := splitIDs(tt.raw)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitIDs(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
