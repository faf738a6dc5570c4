package postgres

import "testing"

func TestConstructDatabaseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		db      string
		want    string
		wantErr bool
	}{
		{
			name: "empty name keeps url",
			url:  "postgres://u:p@localhost:5432/app",
			want: "postgres://u:p@localhost:5432/app",
		},
		{
			name: "replaces database and adds sslmode",
			url:  "postgres://u:p@localhost:5432/app",
			db:   "ledger",
			want: "postgres://u:p@localhost:5432/ledger?sslmode=disable",
		},
		{
			name: "keeps existing query parameters",
			url:  "postgres://u:p@localhost:5432/?sslmode=require&connect_timeout=5",
			db:   "ledger",
			want: "postgres://u:p@localhost:5432/ledger?connect_timeout=5&sslmode=require",
		},
		{
			name:    "rejects other schemes",
			url:     "mysql://u:p@localhost/app",
			db:      "ledger",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConstructDatabaseURL(tt.url, tt.db)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ConstructDatabaseURL() expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ConstructDatabaseURL() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ConstructDatabaseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
