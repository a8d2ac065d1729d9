package model

import (
	"image"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// File is an opaque byte blob with an identity. It is never mutated.
type File struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	MimeType string    `json:"mime_type"`
	Data     []byte    `json:"-"`
}

// NewFile wraps data in a File with a fresh identity.
func NewFile(name, mimeType string, data []byte) *File {
	return &File{
		ID:       uuid.New(),
		Name:     name,
		MimeType: mimeType,
		Data:     data,
	}
}

// Size returns the length of the file contents.
func (f *File) Size() int {
	if f == nil {
		return 0
	}
	return len(f.Data)
}

// IsVector reports whether the file holds an SVG document.
func (f *File) IsVector() bool {
	return f != nil && strings.HasPrefix(f.MimeType, "image/svg+xml")
}

// ReplaceExt returns name with its extension replaced by ext.
func ReplaceExt(name, ext string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return base + "." + ext
}

// Bitmap is a decoded pixel buffer with an identity. The pixels are shared
// read-only and never modified after construction.
type Bitmap struct {
	ID    uuid.UUID
	Image image.Image
}

// NewBitmap wraps img in a Bitmap with a fresh identity.
func NewBitmap(img image.Image) *Bitmap {
	return &Bitmap{ID: uuid.New(), Image: img}
}

// Size returns the bitmap dimensions.
func (b *Bitmap) Size() (int, int) {
	if b == nil || b.Image == nil {
		return 0, 0
	}
	r := b.Image.Bounds()
	return r.Dx(), r.Dy()
}

// Vector is the handle of a rasterized SVG source.
type Vector struct {
	Data   []byte
	Width  int
	Height int
}

// SourceImage is the decoded and preprocessed source. It is replaced
// wholesale whenever the main stage completes.
type SourceImage struct {
	File         *File
	Decoded      *Bitmap
	Preprocessed *Bitmap
	Vector       *Vector // set only for SVG sources
}
