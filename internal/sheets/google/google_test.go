package google

import (
	"context"
	"testing"
)

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		name string
		base string
		year int
		want string
	}{
		{"plain base gets year", "Faturas", 2025, "2025 Faturas"},
		{"already prefixed kept", "2024 Faturas", 2025, "2024 Faturas"},
		{"whitespace trimmed", "  Faturas ", 2025, "2025 Faturas"},
		{"short name gets year", "F", 2025, "2025 F"},
		{"non-numeric prefix gets year", "Gastos 2024", 2025, "2025 Gastos 2024"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
				t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
			}
		})
	}
}

func TestNewFromEnvRequiresSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")
	if _, err := NewFromEnv(context.Background()); err == nil {
		t.Error("NewFromEnv() without GOOGLE_SPREADSHEET_ID should fail")
	}
}
