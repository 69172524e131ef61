package vault

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportCSV(t *testing.T) {
	views := []RecordView{
		{URL: "a.com", Site: "A", Login: "alice", Password: "pw1", Description: "note one"},
		{URL: "b.com", Site: "B", Login: "bob", Password: DecryptFailedSentinel},
	}

	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, views))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "url,username,password,notes,title", lines[0])
	assert.Equal(t, "a.com,alice,pw1,note one,A", lines[1])
	// A failed decryption is exported as the sentinel, not as blank.
	assert.Equal(t, "b.com,bob,[decryption error],,B", lines[2])
}

func TestExportCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, nil))
	assert.Equal(t, "url,username,password,notes,title", strings.TrimSpace(buf.String()))
}

func TestParseCSV_CanonicalHeader(t *testing.T) {
	in := "url,username,password,notes,title\na.com,alice,pw1,note one,A\n"

	views, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, RecordView{URL: "a.com", Login: "alice", Password: "pw1", Description: "note one", Site: "A"}, views[0])
}

func TestParseCSV_HeaderSynonyms(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"keepass style", "Website,User Name,Password,Comments,Title"},
		{"bitwarden style", "login_uri,login_username,login_password,notes,name"},
		{"minimal", "link,user,pass,note,site"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.header + "\na.com,alice,pw1,n,A\n"
			views, err := ParseCSV(strings.NewReader(in))
			require.NoError(t, err)
			require.Len(t, views, 1)
			assert.Equal(t, "a.com", views[0].URL)
			assert.Equal(t, "alice", views[0].Login)
			assert.Equal(t, "pw1", views[0].Password)
			assert.Equal(t, "n", views[0].Description)
			assert.Equal(t, "A", views[0].Site)
		})
	}
}

func TestParseCSV_UnknownColumnsIgnored(t *testing.T) {
	in := "folder,url,username,password,totp\npersonal,a.com,alice,pw1,123456\n"

	views, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "a.com", views[0].URL)
	assert.Empty(t, views[0].Site)
}

func TestParseCSV_DuplicateColumnFirstWins(t *testing.T) {
	in := "url,username,password,email\na.com,alice,pw1,alice@mail.com\n"

	views, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, views, 1)
	// "email" also maps to username, but the earlier column keeps the slot.
	assert.Equal(t, "alice", views[0].Login)
}

func TestParseCSV_SkipsEmptyRows(t *testing.T) {
	in := "url,username,password\na.com,alice,pw1\n,,\n  ,  ,  \nb.com,bob,pw2\n"

	views, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "a.com", views[0].URL)
	assert.Equal(t, "b.com", views[1].URL)
}

func TestParseCSV_RaggedRows(t *testing.T) {
	in := "url,username,password,notes\na.com,alice,pw1\n"

	views, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "pw1", views[0].Password)
	assert.Empty(t, views[0].Description)
}

func TestParseCSV_EmptyInput(t *testing.T) {
	views, err := ParseCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestParseCSV_NoRecognizableColumns(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("foo,bar,baz\n1,2,3\n"))
	assert.Error(t, err)
}

func TestExportImport_RoundTrip(t *testing.T) {
	views := []RecordView{
		{URL: "a.com", Site: "A", Login: "alice", Password: "pw,with,commas", Description: "line\nbreak"},
		{URL: "b.com", Site: "B", Login: "bob", Password: `quote"inside`},
	}

	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, views))

	parsed, err := ParseCSV(&buf)
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	assert.Equal(t, views[0].Password, parsed[0].Password)
	assert.Equal(t, views[0].Description, parsed[0].Description)
	assert.Equal(t, views[1].Password, parsed[1].Password)
}
