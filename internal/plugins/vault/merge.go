package vault

import "strings"

// identityKey normalizes the (url, login) pair that decides whether two
// records are the same credential. Case and surrounding whitespace are
// insignificant; everything else must match exactly.
func identityKey(v RecordView) string {
	return strings.ToLower(strings.TrimSpace(v.URL)) + "\x00" + strings.ToLower(strings.TrimSpace(v.Login))
}

// Merge reconciles an existing decrypted record set with an imported one.
//
// Existing records keep their original relative order. When an imported
// record matches an existing one by identity key and replaceExisting is
// true, the existing record is overlaid with the imported fields: password,
// site, and description are taken from the import when non-empty, while the
// identity fields (url, login) and the record ID keep their existing form.
// Imported records with no existing match are appended in input order as
// new records. Finally, any record with an empty site but a non-empty url
// gets the url as a fallback title.
//
// Pure function over plain data -- no I/O, no clock.
func Merge(existing, imported []RecordView, replaceExisting bool) []RecordView {
	importedByKey := make(map[string]RecordView, len(imported))
	matched := make(map[string]bool, len(imported))
	for _, imp := range imported {
		// First occurrence wins when an import file repeats a credential.
		key := identityKey(imp)
		if _, dup := importedByKey[key]; !dup {
			importedByKey[key] = imp
		}
	}

	merged := make([]RecordView, 0, len(existing)+len(imported))

	for _, ex := range existing {
		key := identityKey(ex)
		imp, hit := importedByKey[key]
		if hit {
			matched[key] = true
		}
		if hit && replaceExisting {
			merged = append(merged, overlay(ex, imp))
		} else {
			merged = append(merged, ex)
		}
	}

	for _, imp := range imported {
		key := identityKey(imp)
		if matched[key] {
			continue
		}
		// Only append the occurrence that won the dedup above.
		if importedByKey[key] == imp {
			matched[key] = true
			merged = append(merged, imp)
		}
	}

	for i := range merged {
		if merged[i].Site == "" && merged[i].URL != "" {
			merged[i].Site = merged[i].URL
		}
	}

	return merged
}

// overlay applies the imported record's fields onto an existing record.
// Imported values win where present; empty imported fields keep the
// existing value so a sparse CSV row cannot blank out stored data.
func overlay(ex, imp RecordView) RecordView {
	out := ex
	if imp.Password != "" {
		out.Password = imp.Password
	}
	if imp.Site != "" {
		out.Site = imp.Site
	}
	if imp.Description != "" {
		out.Description = imp.Description
	}
	return out
}
