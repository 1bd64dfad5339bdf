package services

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
	"golang.org/x/sync/singleflight"
)

// TextExtractor returns the stripped plain text of document pages. Page
// indexes are zero-based; whitespace-only pages come back as "".
type TextExtractor interface {
	PageCount(path string) (int, error)
	ExtractPage(path string, page int) (string, error)
}

// SetPDFLicense installs the UniPDF metered license key. PDF parsing fails
// without one.
func SetPDFLicense(key string) error {
	if key == "" {
		return fmt.Errorf("no UniPDF license key configured")
	}
	return license.SetMeteredKey(key)
}

// cachedDocument is the extracted text of every page of one file version.
type cachedDocument struct {
	modTime time.Time
	size    int64
	pages   []string
}

// PDFExtractor parses PDFs with UniPDF. A whole document is extracted on first
// access and cached by path until the file's size or modification time changes.
type PDFExtractor struct {
	cache  *lru.Cache[string, cachedDocument]
	flight singleflight.Group
}

// NewPDFExtractor keeps up to cacheSize documents in memory.
func NewPDFExtractor(cacheSize int) (*PDFExtractor, error) {
	cache, err := lru.New[string, cachedDocument](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create page cache: %w", err)
	}
	return &PDFExtractor{cache: cache}, nil
}

// PageCount returns the number of pages of the document at path.
func (e *PDFExtractor) PageCount(path string) (int, error) {
	pages, err := e.pages(path)
	if err != nil {
		return 0, err
	}
	return len(pages), nil
}

// ExtractPage returns the text of one page. Out of range pages are empty.
func (e *PDFExtractor) ExtractPage(path string, page int) (string, error) {
	pages, err := e.pages(path)
	if err != nil {
		return "", err
	}
	if page < 0 || page >= len(pages) {
		return "", nil
	}
	return pages[page], nil
}

// Forget drops the cached text of path, used for request-scoped files.
func (e *PDFExtractor) Forget(path string) {
	if abs, err := filepath.Abs(path); err == nil {
		e.cache.Remove(abs)
	}
}

func (e *PDFExtractor) pages(path string) ([]string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if doc, ok := e.cache.Get(abs); ok && doc.size == info.Size() && doc.modTime.Equal(info.ModTime()) {
		return doc.pages, nil
	}

	v, err, _ := e.flight.Do(abs, func() (any, error) {
		pages, err := extractPDFPages(abs)
		if err != nil {
			return nil, err
		}
		e.cache.Add(abs, cachedDocument{modTime: info.ModTime(), size: info.Size(), pages: pages})
		return pages, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// extractPDFPages uses UniPDF to get the stripped text of every page.
func extractPDFPages(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	pdfReader, err := model.NewPdfReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	encrypted, err := pdfReader.IsEncrypted()
	if err != nil {
		return nil, err
	}
	if encrypted {
		ok, err := pdfReader.Decrypt([]byte(""))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%s is password protected", filepath.Base(path))
		}
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return nil, err
	}

	pages := make([]string, numPages)
	for i := 0; i < numPages; i++ {
		page, err := pdfReader.GetPage(i + 1)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}

		ex, err := extractor.New(page)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}

		text, err := ex.ExtractText()
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages[i] = strings.TrimSpace(text)
	}
	return pages, nil
}
