// Package sheet parses uploaded recipient spreadsheets. The first
// sheet must carry a header row with a "telefone" column; variable
// mode additionally requires a "nome" column for templating.
package sheet

import (
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/unclebandit/smsleopard-dashboard/internal/apperrors"
)

// A phone cell shorter than this is junk, not a recipient.
const minPhoneLength = 5

type Entry struct {
	Phone string
	Name  string
}

// Parse extracts the valid recipients from an xlsx stream. A row
// counts when its phone cell, trimmed, is non-empty and longer than
// minPhoneLength characters.
func Parse(r io.Reader, variableMode bool) ([]Entry, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperrors.NewValidation("could not read the spreadsheet, check the file format")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperrors.NewValidation("spreadsheet has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperrors.NewValidation("could not read the spreadsheet, check the file format")
	}
	if len(rows) < 2 {
		return nil, apperrors.NewValidation("spreadsheet is empty or has no data rows after the header")
	}

	header := rows[0]
	phoneIdx, nameIdx := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "telefone":
			phoneIdx = i
		case "nome":
			nameIdx = i
		}
	}
	if phoneIdx == -1 {
		return nil, apperrors.NewValidation("column 'telefone' not found in the spreadsheet")
	}
	if variableMode && nameIdx == -1 {
		return nil, apperrors.NewValidation("variable mode is on: column 'nome' not found in the spreadsheet")
	}

	var entries []Entry
	for _, row := range rows[1:] {
		phone := cell(row, phoneIdx)
		if phone == "" || len(phone) <= minPhoneLength {
			continue
		}
		entries = append(entries, Entry{Phone: phone, Name: cell(row, nameIdx)})
	}
	return entries, nil
}

// DetectRecipients previews how many rows would actually be sent to,
// before anything is uploaded.
func DetectRecipients(r io.Reader, variableMode bool) (int, error) {
	entries, err := Parse(r, variableMode)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
