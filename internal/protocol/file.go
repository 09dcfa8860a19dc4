package protocol

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// File payload tags, in wire order.
const (
	TagFile          = "[FILE]"
	TagFileName      = "[FILENAME]"
	TagFileExtension = "[FILEEXTENSION]"
	TagFileType      = "[FILETYPE]"
	TagFileSize      = "[FILESIZE]"
	TagFileData      = "[FILEDATA]"
	TagThumbnail     = "[THUMBNAIL]"
	TagFileEnd       = "[/FILE]"
)

type FileType string

const (
	FileTypeImage FileType = "image"
	FileTypeVideo FileType = "video"
	FileTypeOther FileType = "other"
)

func (t FileType) Valid() bool {
	switch t {
	case FileTypeImage, FileTypeVideo, FileTypeOther:
		return true
	}
	return false
}

var imageExtensions = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {}, "gif": {}, "bmp": {}, "webp": {},
}

var videoExtensions = map[string]struct{}{
	"mp4": {}, "avi": {}, "mkv": {}, "mov": {}, "wmv": {}, "flv": {}, "webm": {},
}

// ClassifyExtension maps an extension (with or without the dot) to a file type.
func ClassifyExtension(ext string) FileType {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if _, ok := imageExtensions[ext]; ok {
		return FileTypeImage
	}
	if _, ok := videoExtensions[ext]; ok {
		return FileTypeVideo
	}
	return FileTypeOther
}

// File is a file-transfer payload. Data and Thumbnail stay base64 encoded,
// exactly as they travel.
type File struct {
	Name      string
	Extension string
	Type      FileType
	Size      int64
	Data      string
	Thumbnail string
}

// NewFile builds a payload for the file called fileName with the given
// content. The thumbnail is left empty: producing one is up to the caller.
func NewFile(fileName string, content []byte) File {
	base := filepath.Base(fileName)
	ext := filepath.Ext(base)

	return File{
		Name:      strings.TrimSuffix(base, ext),
		Extension: strings.TrimPrefix(ext, "."),
		Type:      ClassifyExtension(ext),
		Size:      int64(len(content)),
		Data:      base64.StdEncoding.EncodeToString(content),
	}
}

// FullName joins name and extension back into a file name.
func (f File) FullName() string {
	if f.Extension == "" {
		return f.Name
	}
	return f.Name + "." + f.Extension
}

// HasThumbnail reports whether a thumbnail block is attached.
func (f File) HasThumbnail() bool {
	return f.Thumbnail != ""
}

// Content decodes the file data.
func (f File) Content() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(f.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: file data: %v", ErrMalformedFile, err)
	}
	return data, nil
}

// IsFilePayload reports whether a chat body carries a file payload.
func IsFilePayload(body string) bool {
	return strings.HasPrefix(body, TagFile)
}

// EncodeFile renders f with the literal bracket tags. A thumbnail is
// written only for images; on other types it is dropped.
func EncodeFile(f File) string {
	var b strings.Builder

	b.Grow(len(f.Data) + len(f.Thumbnail) + 128)
	b.WriteString(TagFile)
	b.WriteString(f.Name)
	b.WriteString(TagFileName)
	b.WriteString(f.Extension)
	b.WriteString(TagFileExtension)
	b.WriteString(string(f.Type))
	b.WriteString(TagFileType)
	b.WriteString(strconv.FormatInt(f.Size, 10))
	b.WriteString(TagFileSize)
	b.WriteString(f.Data)
	b.WriteString(TagFileData)
	if f.Type == FileTypeImage && f.Thumbnail != "" {
		b.WriteString(TagThumbnail)
		b.WriteString(f.Thumbnail)
	}
	b.WriteString(TagFileEnd)

	return b.String()
}

// ParseFile extracts the fields of a file payload. Each tag is searched in
// wire order starting right after the previous one, and the field is the
// text between adjacent tags.
func ParseFile(body string) (File, error) {
	if !IsFilePayload(body) {
		return File{}, fmt.Errorf("%w: missing %s", ErrMalformedFile, TagFile)
	}

	pos := len(TagFile)
	next := func(tag string) (string, error) {
		i := strings.Index(body[pos:], tag)
		if i < 0 {
			return "", fmt.Errorf("%w: missing %s", ErrMalformedFile, tag)
		}
		field := body[pos : pos+i]
		pos += i + len(tag)
		return field, nil
	}

	var (
		f   File
		err error
	)

	if f.Name, err = next(TagFileName); err != nil {
		return File{}, err
	}
	if f.Extension, err = next(TagFileExtension); err != nil {
		return File{}, err
	}
	fileType, err := next(TagFileType)
	if err != nil {
		return File{}, err
	}
	f.Type = FileType(fileType)
	if !f.Type.Valid() {
		return File{}, fmt.Errorf("%w: unknown file type %q", ErrMalformedFile, fileType)
	}
	size, err := next(TagFileSize)
	if err != nil {
		return File{}, err
	}
	f.Size, err = strconv.ParseInt(size, 10, 64)
	if err != nil || f.Size < 0 {
		return File{}, fmt.Errorf("%w: bad size %q", ErrMalformedFile, size)
	}
	if f.Data, err = next(TagFileData); err != nil {
		return File{}, err
	}
	tail, err := next(TagFileEnd)
	if err != nil {
		return File{}, err
	}

	switch {
	case tail == "":
	case strings.HasPrefix(tail, TagThumbnail):
		f.Thumbnail = tail[len(TagThumbnail):]
	default:
		return File{}, fmt.Errorf("%w: unexpected text before %s", ErrMalformedFile, TagFileEnd)
	}

	return f, nil
}
