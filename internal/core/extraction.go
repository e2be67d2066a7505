package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"tusas.com/document-qa/internal/domain"
	"tusas.com/document-qa/internal/pdf"
)

// ErrUnsupportedFileType is a programming error: upload validation should
// have rejected the file before extraction.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// imageMimeTypes lists the OCR-only file types.
var imageMimeTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
}

type PDFReader interface {
	ReadPages(data []byte) ([]pdf.Page, error)
}

type FileReader interface {
	ReadFile(ctx context.Context, location string) ([]byte, error)
}

// Extractor turns a stored file into page-scoped segments, preferring native
// PDF text and falling back to OCR.
type Extractor struct {
	files             FileReader
	pdf               PDFReader
	minCharsBeforeOCR int
}

func NewExtractor(files FileReader, pdfReader PDFReader, minCharsBeforeOCR int) *Extractor {
	return &Extractor{files: files, pdf: pdfReader, minCharsBeforeOCR: minCharsBeforeOCR}
}

func (e *Extractor) Extract(ctx context.Context, ocr OCR, location, fileType string) ([]domain.Segment, error) {
	fileType = strings.ToLower(fileType)
	mimeType, isImage := imageMimeTypes[fileType]
	if fileType != "pdf" && !isImage {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, fileType)
	}

	data, err := e.files.ReadFile(ctx, location)
	if err != nil {
		return nil, err
	}

	if isImage {
		text, err := ocr.ExtractTextFromImage(ctx, data, mimeType)
		if err != nil {
			return nil, fmt.Errorf("ocr failed: %w", err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, nil
		}
		return []domain.Segment{{Page: domain.IntPtr(1), Source: domain.SourceOCR, Text: text}}, nil
	}
	return e.extractPDF(ctx, ocr, data)
}

func (e *Extractor) extractPDF(ctx context.Context, ocr OCR, data []byte) ([]domain.Segment, error) {
	pages, err := e.pdf.ReadPages(data)
	if err != nil {
		return nil, err
	}

	var segments []domain.Segment
	for _, page := range pages {
		native := strings.TrimSpace(page.Text)
		if utf8.RuneCountInString(native) >= e.minCharsBeforeOCR {
			segments = append(segments, domain.Segment{Page: domain.IntPtr(page.Number), Source: domain.SourceNative, Text: native})
			continue
		}
		if page.Image == nil {
			debugf("page %d: %d native chars and no image, skipped", page.Number, utf8.RuneCountInString(native))
			continue
		}

		text, err := ocr.ExtractTextFromImage(ctx, page.Image.Data, page.Image.MimeType)
		if err != nil {
			return nil, fmt.Errorf("ocr failed on page %d: %w", page.Number, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			segments = append(segments, domain.Segment{Page: domain.IntPtr(page.Number), Source: domain.SourceOCR, Text: text})
		}
	}
	return segments, nil
}
