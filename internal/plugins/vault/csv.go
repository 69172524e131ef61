package vault

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Canonical CSV columns. Export always writes exactly these, in this order.
// The naming follows the common browser/password-manager export shape:
// login is exported as "username", description as "notes", site as "title".
var exportHeader = []string{"url", "username", "password", "notes", "title"}

// headerSynonyms maps lowercased variant column names from other tools'
// exports onto the canonical columns. Matching is case-insensitive and
// exact; unknown columns are ignored.
var headerSynonyms = map[string]string{
	"url":            "url",
	"link":           "url",
	"website":        "url",
	"web site":       "url",
	"login_uri":      "url",
	"login uri":      "url",
	"username":       "username",
	"user name":      "username",
	"user":           "username",
	"login":          "username",
	"login_username": "username",
	"email":          "username",
	"password":       "password",
	"pass":           "password",
	"login_password": "password",
	"notes":          "notes",
	"note":           "notes",
	"description":    "notes",
	"comments":       "notes",
	"comment":        "notes",
	"title":          "title",
	"site":           "title",
	"name":           "title",
	"site name":      "title",
}

// ExportCSV writes the decrypted views as CSV. Fields that failed to
// decrypt are exported as the sentinel -- silently exporting an empty
// password would be indistinguishable from a genuinely blank one.
func ExportCSV(w io.Writer, views []RecordView) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for _, v := range views {
		row := []string{v.URL, v.Login, v.Password, v.Description, v.Site}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ParseCSV reads an import file into record views. The first row must be a
// header; each column is resolved through the synonym table. Rows where all
// mapped fields are empty are skipped. Zero valid rows is not an error --
// the caller gets an empty slice and the merge is a no-op.
func ParseCSV(r io.Reader) ([]RecordView, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // Tolerate ragged rows; missing cells read as empty.
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}

	// Map column index -> canonical field. Later duplicates of a canonical
	// column are ignored; the first one wins.
	cols := make(map[int]string, len(header))
	seen := make(map[string]bool, len(exportHeader))
	for i, name := range header {
		canonical, ok := headerSynonyms[strings.ToLower(strings.TrimSpace(name))]
		if !ok || seen[canonical] {
			continue
		}
		cols[i] = canonical
		seen[canonical] = true
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("csv header has no recognizable columns")
	}

	var views []RecordView
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv row: %w", err)
		}

		var v RecordView
		empty := true
		for i, cell := range row {
			canonical, ok := cols[i]
			if !ok {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell != "" {
				empty = false
			}
			switch canonical {
			case "url":
				v.URL = cell
			case "username":
				v.Login = cell
			case "password":
				v.Password = cell
			case "notes":
				v.Description = cell
			case "title":
				v.Site = cell
			}
		}
		if empty {
			continue
		}
		views = append(views, v)
	}

	return views, nil
}
