package extractor

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const docxBody = "word/document.xml"

var errDocxBodyMissing = errors.New("word/document.xml not found")

// extractDocx returns the paragraph texts of a word document, one per line.
func extractDocx(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != docxBody {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", docxBody, err)
		}
		defer rc.Close()
		paragraphs, err := docxParagraphs(rc)
		if err != nil {
			return "", err
		}
		return strings.Join(paragraphs, "\n"), nil
	}
	return "", errDocxBodyMissing
}

// docxParagraphs returns the direct paragraph children of w:body. Paragraphs
// nested in tables or text boxes are skipped, as is text of nested paragraphs
// inside a top-level one.
func docxParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		paragraphs []string
		cur        strings.Builder
		stack      []string
		// open w:p elements, counted only while a top-level paragraph is open
		pDepth int
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", docxBody, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			parent := ""
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			}
			stack = append(stack, name)
			switch name {
			case "p":
				if pDepth > 0 {
					pDepth++
				} else if parent == "body" {
					cur.Reset()
					pDepth = 1
				}
			case "t":
				inText = pDepth == 1
			case "tab":
				if pDepth == 1 {
					cur.WriteString("\t")
				}
			case "br":
				if pDepth == 1 {
					cur.WriteString("\n")
				}
			}
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			switch t.Name.Local {
			case "p":
				if pDepth == 0 {
					continue
				}
				pDepth--
				if pDepth == 0 {
					paragraphs = append(paragraphs, cur.String())
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}
	return paragraphs, nil
}
