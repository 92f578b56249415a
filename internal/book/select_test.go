package book

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseChapterSelection(t *testing.T) {
	cases := []struct {
		spec string
		want []int
	}{
		{"1-2,5", []int{1, 2, 5}},
		{"3", []int{3}},
		{"1,1,2", []int{1, 2}},
		{"4-4", []int{4}},
	}
	for _, c := range cases {
		got, err := ParseChapterSelection(c.spec)
		require.NoError(t, err)
		require.Equal(t, c.want, got)
	}
}

func TestParseChapterSelection_Errors(t *testing.T) {
	for _, spec := range []string{"", "0", "a-b", "5-1", "x"} {
		_, err := ParseChapterSelection(spec)
		require.Error(t, err, "spec %q should have failed", spec)
	}
}

func TestDescriptor_ResolveSelection(t *testing.T) {
	// Book has 5 chapters numbered 3,7,9,12,14 due to front-matter.
	d := Descriptor{Chapters: []Chapter{
		{Number: 3}, {Number: 7}, {Number: 9}, {Number: 12}, {Number: 14},
	}}

	positions, err := ParseChapterSelection("1-2,5")
	require.NoError(t, err)

	got := d.ResolveSelection(positions)
	require.Equal(t, []int{3, 7, 14}, got)
}

func TestDescriptor_Validate(t *testing.T) {
	ok := Descriptor{Chapters: []Chapter{{Number: 1}, {Number: 2}, {Number: 3}}}
	require.NoError(t, ok.Validate())

	bad := Descriptor{Chapters: []Chapter{{Number: 1}, {Number: 3}}}
	require.Error(t, bad.Validate())
}
