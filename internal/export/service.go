package export

import (
	"fmt"
	"time"
)

// Service renders printable frame sheets.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// FrameSheet renders an assembled sheet to PDF.
func (s *Service) FrameSheet(sheet Sheet) (*Result, error) {
	if sheet.GeneratedAt.IsZero() {
		sheet.GeneratedAt = time.Now()
	}

	html, err := RenderSheetHTML(sheet)
	if err != nil {
		return nil, fmt.Errorf("render sheet template: %w", err)
	}

	return renderPDF(html, sanitizeFilename(sheet.Code)+".pdf")
}
