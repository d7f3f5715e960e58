// Package fileproc extracts plain text from uploaded documents.
package fileproc

import (
	"errors"
	"fmt"
	"log"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/encoding/charmap"
)

var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrExtractionFailed    = errors.New("text extraction failed")
)

// File families handled by Extract.
const (
	TypeText  = "text"
	TypePDF   = "pdf"
	TypeDocx  = "docx"
	TypeExcel = "excel"
	TypePptx  = "pptx"
)

var supportedExtensions = map[string]string{
	".txt":  TypeText,
	".md":   TypeText,
	".pdf":  TypePDF,
	".docx": TypeDocx,
	".doc":  TypeDocx,
	".xlsx": TypeExcel,
	".xls":  TypeExcel,
	".pptx": TypePptx,
	".ppt":  TypePptx,
}

// SupportedExtensions lists the accepted file extensions in sorted order.
func SupportedExtensions() []string {
	return slices.Sorted(maps.Keys(supportedExtensions))
}

// Extraction is the text pulled out of a single file.
type Extraction struct {
	Text      string
	Filename  string
	FileType  string
	MIMEType  string
	CharCount int
}

// Extract picks an extractor by file extension and returns the document text.
func Extract(content []byte, filename string) (*Extraction, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	fileType, ok := supportedExtensions[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFileType, ext, strings.Join(SupportedExtensions(), ", "))
	}

	mime := mimetype.Detect(content)

	var text string
	var err error
	switch fileType {
	case TypeText:
		if !isText(mime) {
			return nil, fmt.Errorf("%w: %s looks like %s, not text", ErrExtractionFailed, filename, mime.String())
		}
		text = decodeText(content)
	case TypePDF:
		text, err = extractPDF(content)
	case TypeDocx:
		text, err = extractDocx(content)
	case TypeExcel:
		text, err = extractExcel(content)
	case TypePptx:
		text, err = extractPptx(content)
	}
	if err != nil {
		log.Printf("ERROR [FileProc] Extract: Failed for %s (%s): %v", filename, mime.String(), err)
		return nil, fmt.Errorf("%w: error processing %s: %v", ErrExtractionFailed, filename, err)
	}

	return &Extraction{
		Text:      text,
		Filename:  filename,
		FileType:  fileType,
		MIMEType:  mime.String(),
		CharCount: utf8.RuneCountInString(text),
	}, nil
}

func isText(mime *mimetype.MIME) bool {
	for m := mime; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// decodeText reads UTF-8, falling back to Windows-1252 when the C1 range is
// used (printable there, control codes in Latin-1) and Latin-1 otherwise.
func decodeText(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}
	dec := charmap.ISO8859_1.NewDecoder()
	for _, b := range content {
		if b >= 0x80 && b <= 0x9f {
			dec = charmap.Windows1252.NewDecoder()
			break
		}
	}
	out, err := dec.Bytes(content)
	if err != nil {
		// Single-byte charmaps decode every byte; keep the raw bytes if that ever changes.
		return string(content)
	}
	return string(out)
}
