package vault

import "testing"

func TestSearch(t *testing.T) {
	views := []RecordView{
		{ID: "1", URL: "github.com", Site: "GitHub", Login: "alice", Password: "secret-a", Description: "work account"},
		{ID: "2", URL: "gitlab.com", Site: "GitLab", Login: "bob", Password: "secret-b"},
		{ID: "3", URL: "bank.example", Site: "Bank", Login: "alice@mail.com", Password: "secret-c", Description: "personal"},
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"empty query returns all", "", []string{"1", "2", "3"}},
		{"whitespace query returns all", "   ", []string{"1", "2", "3"}},
		{"url match", "github", []string{"1"}},
		{"case insensitive", "GITLAB", []string{"2"}},
		{"login match", "alice", []string{"1", "3"}},
		{"description match", "personal", []string{"3"}},
		{"site match", "bank", []string{"3"}},
		{"password never matches", "secret-b", nil},
		{"no match", "zzz", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Search(views, tt.query)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d results, got %d", len(tt.want), len(got))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("result %d: expected id %s, got %s", i, id, got[i].ID)
				}
			}
		})
	}
}
