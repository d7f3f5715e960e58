package fileproc

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var slidePath = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// maxPartSize bounds the decompressed size of a single archive part.
var maxPartSize int64 = 64 << 20

var errPartTooLarge = errors.New("archive part exceeds size limit")

func openZipEntry(zr *zip.Reader, name string) (io.ReadCloser, error) {
	for _, f := range zr.File {
		if f.Name == name {
			return openPart(f)
		}
	}
	return nil, fmt.Errorf("%s missing from archive", name)
}

// openPart opens f, rejecting parts whose declared or actual decompressed
// size is above maxPartSize.
func openPart(f *zip.File) (io.ReadCloser, error) {
	if f.UncompressedSize64 > uint64(maxPartSize) {
		return nil, fmt.Errorf("%w: %s declares %d bytes", errPartTooLarge, f.Name, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	return &cappedReader{
		r:     io.LimitReader(rc, maxPartSize+1),
		c:     rc,
		name:  f.Name,
		limit: maxPartSize,
	}, nil
}

// cappedReader fails once more than limit bytes were read, since the
// declared size in the zip header is not trusted.
type cappedReader struct {
	r     io.Reader
	c     io.Closer
	name  string
	limit int64
	read  int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += int64(n)
	if c.read > c.limit {
		return n, fmt.Errorf("%w: %s", errPartTooLarge, c.name)
	}
	return n, err
}

func (c *cappedReader) Close() error { return c.c.Close() }

// extractDocx returns body paragraphs followed by table rows, each row's
// cells joined with " | ".
func extractDocx(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("opening document: %w", err)
	}
	rc, err := openZipEntry(zr, "word/document.xml")
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var (
		paragraphs []string
		rows       []string
		para       strings.Builder
		cell       strings.Builder
		cells      []string
		tableDepth int
		inRun      bool
		inText     bool
		cellParas  int
	)

	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parsing document: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
			case "tr":
				if tableDepth == 1 {
					cells = nil
				}
			case "tc":
				if tableDepth == 1 {
					cell.Reset()
					cellParas = 0
				}
			case "p":
				if tableDepth == 0 {
					para.Reset()
				} else if cellParas > 0 {
					cell.WriteString("\n")
				}
			case "r":
				inRun = true
			case "t":
				inText = true
			case "tab":
				if inRun {
					writeRun(tableDepth, &para, &cell, "\t")
				}
			case "br":
				if inRun {
					writeRun(tableDepth, &para, &cell, "\n")
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth--
			case "tr":
				if tableDepth == 1 {
					row := strings.Join(cells, " | ")
					if strings.TrimSpace(row) != "" {
						rows = append(rows, row)
					}
				}
			case "tc":
				if tableDepth == 1 {
					cells = append(cells, strings.TrimSpace(cell.String()))
				}
			case "p":
				if tableDepth == 0 {
					if strings.TrimSpace(para.String()) != "" {
						paragraphs = append(paragraphs, para.String())
					}
				} else {
					cellParas++
				}
			case "r":
				inRun = false
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				writeRun(tableDepth, &para, &cell, string(t))
			}
		}
	}

	return strings.Join(append(paragraphs, rows...), "\n\n"), nil
}

func writeRun(tableDepth int, para, cell *strings.Builder, s string) {
	if tableDepth == 0 {
		para.WriteString(s)
	} else {
		cell.WriteString(s)
	}
}

// extractPptx returns a "[Slide n]" marker per slide followed by the text of
// each shape on it.
func extractPptx(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("opening presentation: %w", err)
	}

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		if m := slidePath.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slide{num: n, file: f})
		}
	}
	slices.SortFunc(slides, func(a, b slide) int { return a.num - b.num })

	var parts []string
	for i, s := range slides {
		parts = append(parts, fmt.Sprintf("[Slide %d]", i+1))
		shapes, err := slideShapes(s.file)
		if err != nil {
			return "", fmt.Errorf("reading slide %d: %w", i+1, err)
		}
		parts = append(parts, shapes...)
	}
	return strings.Join(parts, "\n\n"), nil
}

func slideShapes(f *zip.File) ([]string, error) {
	rc, err := openPart(f)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var (
		shapes  []string
		shape   strings.Builder
		inShape bool
		inText  bool
		paras   int
	)

	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "sp":
				inShape = true
				shape.Reset()
				paras = 0
			case "p":
				if inShape && paras > 0 {
					shape.WriteString("\n")
				}
			case "t":
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "sp":
				inShape = false
				if strings.TrimSpace(shape.String()) != "" {
					shapes = append(shapes, shape.String())
				}
			case "p":
				if inShape {
					paras++
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if inShape && inText {
				shape.Write(t)
			}
		}
	}
	return shapes, nil
}
