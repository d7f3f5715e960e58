package fileproc

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

func extractPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	var parts []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("reading page %d: %w", i, err)
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, fmt.Sprintf("[Page %d]\n%s", i, text))
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func extractExcel(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	var parts []string
	for _, sheet := range f.GetSheetList() {
		parts = append(parts, fmt.Sprintf("[Sheet: %s]", sheet))

		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("reading sheet %s: %w", sheet, err)
		}
		for _, row := range rows {
			line := strings.Join(row, " | ")
			if strings.TrimSpace(line) != "" {
				parts = append(parts, line)
			}
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
