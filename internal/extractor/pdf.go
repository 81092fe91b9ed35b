package extractor

import (
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PageReader returns the plain text of each page of a PDF, in page order.
type PageReader interface {
	ReadPages(path string) ([]string, error)
}

// PDFReader implements PageReader with github.com/ledongthuc/pdf.
type PDFReader struct{}

func (PDFReader) ReadPages(path string) (pages []string, err error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// The parser panics on some malformed content streams.
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = fmt.Errorf("malformed pdf: %v", rec)
		}
	}()

	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}
