package vault

import "strings"

// Search filters decrypted views by a case-insensitive substring match over
// url, login, site, and description. Passwords are deliberately excluded
// from matching. Order is preserved; an empty query returns everything.
func Search(views []RecordView, query string) []RecordView {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return views
	}

	results := make([]RecordView, 0, len(views))
	for _, v := range views {
		if strings.Contains(strings.ToLower(v.URL), q) ||
			strings.Contains(strings.ToLower(v.Login), q) ||
			strings.Contains(strings.ToLower(v.Site), q) ||
			strings.Contains(strings.ToLower(v.Description), q) {
			results = append(results, v)
		}
	}
	return results
}
