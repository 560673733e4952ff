package parser

import (
	"archive/zip"
	"fmt"
	"html"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

func parsePDF(filePath string) ([]page, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Get file size for reader initialization
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	var pages []page
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("read pdf page %d: %w", i, err)
		}
		pages = append(pages, page{number: i, text: pageText})
	}
	return pages, nil
}

func parseDOCX(filePath string) ([]page, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	// GetContent returns the raw document.xml
	content := r.Editable().GetContent()
	var paragraphs []string
	for _, p := range strings.Split(content, "</w:p>") {
		text := strings.TrimSpace(extractTextFromXML(p, "w:t", ""))
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	// DOCX has no page numbers
	return []page{{number: 1, text: strings.Join(paragraphs, "\n")}}, nil
}

func parsePPTX(filePath string) ([]page, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []page
	for _, file := range f.File {
		var slideNum int
		if _, err := fmt.Sscanf(file.Name, "ppt/slides/slide%d.xml", &slideNum); err != nil {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			log.Warn().Err(err).Str("slide", file.Name).Msg("Skipping unreadable slide")
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			log.Warn().Err(err).Str("slide", file.Name).Msg("Skipping unreadable slide")
			continue
		}
		pages = append(pages, page{number: slideNum, text: extractTextFromXML(string(data), "a:t", " ")})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].number < pages[j].number })
	return pages, nil
}

func parseXLSX(filePath string) ([]page, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	var pages []page
	for sheetNum, sheet := range f.Sheets {
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			text.WriteString(strings.Join(cells, "\t") + "\n")
		}
		pages = append(pages, page{number: sheetNum + 1, text: text.String()})
	}
	return pages, nil
}

func parseXLSM(filePath string) ([]page, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []page
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			log.Warn().Err(err).Str("sheet", sheetName).Msg("Skipping unreadable sheet")
			continue
		}
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t") + "\n")
		}
		pages = append(pages, page{number: sheetNum + 1, text: text.String()})
	}
	return pages, nil
}

func parseText(filePath string) ([]page, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return []page{{number: 1, text: string(data)}}, nil
}

// extractTextFromXML joins the character data of every <tag> element with sep.
func extractTextFromXML(xmlContent, tag, sep string) string {
	var parts []string
	open := "<" + tag
	closing := "</" + tag + ">"
	rest := xmlContent
	for {
		idx := strings.Index(rest, open)
		if idx < 0 {
			break
		}
		rest = rest[idx+len(open):]
		// skip longer tag names sharing the prefix, e.g. <a:tab> for <a:t>
		if rest == "" || (rest[0] != '>' && rest[0] != ' ') {
			continue
		}
		gt := strings.IndexByte(rest, '>')
		if gt < 0 {
			break
		}
		if gt > 0 && rest[gt-1] == '/' {
			rest = rest[gt+1:]
			continue
		}
		rest = rest[gt+1:]
		endIdx := strings.Index(rest, closing)
		if endIdx < 0 {
			break
		}
		parts = append(parts, html.UnescapeString(rest[:endIdx]))
		rest = rest[endIdx+len(closing):]
	}
	return strings.TrimSpace(strings.Join(parts, sep))
}
