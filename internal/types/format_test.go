package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "markdown", want: FormatMarkdown},
		{in: " HTML ", want: FormatHTML},
		{in: "jsonld", want: FormatJSONLD},
		{in: "md", want: FormatMarkdown},
		{in: "json-ld", want: FormatJSONLD},
		{in: "pdf", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormat_Extension(t *testing.T) {
	assert.Equal(t, ".md", FormatMarkdown.Extension())
	assert.Equal(t, ".html", FormatHTML.Extension())
	assert.Equal(t, ".jsonld", FormatJSONLD.Extension())
	assert.Equal(t, ".txt", Format("pdf").Extension())
}

func TestSortFormats(t *testing.T) {
	got := SortFormats([]Format{FormatJSONLD, "zzz", FormatMarkdown, FormatJSONLD, "aaa", FormatHTML})
	assert.Equal(t, []Format{FormatMarkdown, FormatHTML, FormatJSONLD, "aaa", "zzz"}, got)

	assert.Empty(t, SortFormats(nil))
	assert.True(t, FormatMarkdown.Valid())
	assert.False(t, Format("pdf").Valid())
}
