package protocol

import (
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeParseFile_RoundTrip(t *testing.T) {
	data := base64.StdEncoding.EncodeToString([]byte("some file content"))
	thumb := base64.StdEncoding.EncodeToString([]byte{0xFF, 0xD8, 0xFF, 0xE0})

	for _, fileType := range []FileType{FileTypeImage, FileTypeVideo, FileTypeOther} {
		for _, thumbnail := range []string{"", thumb} {
			name := fmt.Sprintf("%s/thumbnail=%t", fileType, thumbnail != "")
			t.Run(name, func(t *testing.T) {
				original := File{
					Name:      "holiday photo",
					Extension: "jpg",
					Type:      fileType,
					Size:      17,
					Data:      data,
					Thumbnail: thumbnail,
				}

				want := original
				if fileType != FileTypeImage {
					want.Thumbnail = ""
				}

				parsed, err := ParseFile(EncodeFile(original))
				require.NoError(t, err)
				assert.Equal(t, want, parsed)
			})
		}
	}
}

func TestEncodeFile_Layout(t *testing.T) {
	f := File{Name: "a", Extension: "png", Type: FileTypeImage, Size: 3, Data: "QUJD", Thumbnail: "VEg="}

	assert.Equal(t,
		"[FILE]a[FILENAME]png[FILEEXTENSION]image[FILETYPE]3[FILESIZE]QUJD[FILEDATA][THUMBNAIL]VEg=[/FILE]",
		EncodeFile(f),
	)

	f.Thumbnail = ""
	assert.Equal(t,
		"[FILE]a[FILENAME]png[FILEEXTENSION]image[FILETYPE]3[FILESIZE]QUJD[FILEDATA][/FILE]",
		EncodeFile(f),
	)
}

func TestEncodeFile_ThumbnailOnlyForImages(t *testing.T) {
	for _, fileType := range []FileType{FileTypeVideo, FileTypeOther} {
		f := File{Name: "a", Extension: "bin", Type: fileType, Size: 3, Data: "QUJD", Thumbnail: "VEg="}

		encoded := EncodeFile(f)
		assert.NotContains(t, encoded, TagThumbnail, fileType)
		assert.Equal(t,
			"[FILE]a[FILENAME]bin[FILEEXTENSION]"+string(fileType)+"[FILETYPE]3[FILESIZE]QUJD[FILEDATA][/FILE]",
			encoded,
		)
	}
}

func TestTagLengths(t *testing.T) {
	assert.Len(t, TagFileName, 10)
	assert.Len(t, TagFileExtension, 15)
	assert.Len(t, TagFileType, 10)
	assert.Len(t, TagFileData, 10)
}

func TestParseFile_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not a file", payload: "hello"},
		{name: "missing filename tag", payload: "[FILE]a[FILEEXTENSION]image[FILETYPE]3[FILESIZE]QUJD[FILEDATA][/FILE]"},
		{name: "unknown type", payload: "[FILE]a[FILENAME]png[FILEEXTENSION]audio[FILETYPE]3[FILESIZE]QUJD[FILEDATA][/FILE]"},
		{name: "bad size", payload: "[FILE]a[FILENAME]png[FILEEXTENSION]image[FILETYPE]x[FILESIZE]QUJD[FILEDATA][/FILE]"},
		{name: "negative size", payload: "[FILE]a[FILENAME]png[FILEEXTENSION]image[FILETYPE]-1[FILESIZE]QUJD[FILEDATA][/FILE]"},
		{name: "truncated", payload: "[FILE]a[FILENAME]png[FILEEXTENSION]image[FILETYPE]3[FILESIZE]QU"},
		{name: "missing end", payload: "[FILE]a[FILENAME]png[FILEEXTENSION]image[FILETYPE]3[FILESIZE]QUJD[FILEDATA]"},
		{name: "junk before end", payload: "[FILE]a[FILENAME]png[FILEEXTENSION]image[FILETYPE]3[FILESIZE]QUJD[FILEDATA]junk[/FILE]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFile(tt.payload)
			assert.ErrorIs(t, err, ErrMalformedFile)
		})
	}
}

func TestNewFile(t *testing.T) {
	content := []byte("binary\x00data")

	f := NewFile("/tmp/dir/clip.MP4", content)

	assert.Equal(t, "clip", f.Name)
	assert.Equal(t, "MP4", f.Extension)
	assert.Equal(t, FileTypeVideo, f.Type)
	assert.Equal(t, int64(len(content)), f.Size)
	assert.False(t, f.HasThumbnail())
	assert.Equal(t, "clip.MP4", f.FullName())

	decoded, err := f.Content()
	require.NoError(t, err)
	assert.Equal(t, content, decoded)
}

func TestClassifyExtension(t *testing.T) {
	assert.Equal(t, FileTypeImage, ClassifyExtension(".jpeg"))
	assert.Equal(t, FileTypeImage, ClassifyExtension("PNG"))
	assert.Equal(t, FileTypeVideo, ClassifyExtension("mkv"))
	assert.Equal(t, FileTypeOther, ClassifyExtension("pdf"))
	assert.Equal(t, FileTypeOther, ClassifyExtension(""))
}
