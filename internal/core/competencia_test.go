package core

import (
	"testing"
	"time"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func TestCalculateCompetencia(t *testing.T) {
	tests := []struct {
		name      string
		purchase  time.Time
		dueDay    int
		closeDays int
		want      Competencia
	}{
		{
			name:      "purchase before close date stays in prior period",
			purchase:  date(2025, 3, 25), // close for April cycle is 2025-03-31
			dueDay:    10,
			closeDays: 10,
			want:      Competencia{Mes: 3, Ano: 2025},
		},
		{
			name:      "purchase exactly on close date moves to next period",
			purchase:  date(2025, 3, 31),
			dueDay:    10,
			closeDays: 10,
			want:      Competencia{Mes: 4, Ano: 2025},
		},
		{
			name:      "purchase on a thirty-day-month close moves forward",
			purchase:  date(2025, 4, 30), // close for May cycle is 2025-04-30
			dueDay:    10,
			closeDays: 10,
			want:      Competencia{Mes: 5, Ano: 2025},
		},
		{
			name:      "day before the thirty-day-month close",
			purchase:  date(2025, 4, 29),
			dueDay:    10,
			closeDays: 10,
			want:      Competencia{Mes: 4, Ano: 2025},
		},
		{
			name:      "purchase on the due day itself",
			purchase:  date(2025, 6, 10),
			dueDay:    10,
			closeDays: 10,
			want:      Competencia{Mes: 6, Ano: 2025},
		},
		{
			name:      "december purchase past close rolls into january",
			purchase:  date(2025, 12, 28),
			dueDay:    5,
			closeDays: 10,
			want:      Competencia{Mes: 1, Ano: 2026},
		},
		{
			name:      "due day above 28 is clamped",
			purchase:  date(2025, 2, 27),
			dueDay:    31, // treated as 28
			closeDays: 5,
			want:      Competencia{Mes: 2, Ano: 2025}, // close 2025-02-23 already passed
		},
		{
			name:      "zero close days falls back to default of 10",
			purchase:  date(2025, 3, 25),
			dueDay:    10,
			closeDays: 0,
			want:      Competencia{Mes: 3, Ano: 2025},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateCompetencia(tt.purchase, tt.dueDay, tt.closeDays)
			if got != tt.want {
				t.Errorf("CalculateCompetencia(%s) = %v, want %v",
					tt.purchase.Format("2006-01-02"), got, tt.want)
			}
		})
	}
}

func TestCalculateCompetencia_Monotonic(t *testing.T) {
	// For a fixed billing config the competência never decreases as the
	// purchase date advances.
	configs := []struct{ dueDay, closeDays int }{
		{10, 10}, {1, 5}, {28, 28}, {31, 1}, {15, 10},
	}
	for _, cfg := range configs {
		prev := Competencia{}
		d := date(2025, 1, 1)
		for d.Year() == 2025 {
			c := CalculateCompetencia(d, cfg.dueDay, cfg.closeDays)
			if prev != (Competencia{}) {
				if c.Ano < prev.Ano || (c.Ano == prev.Ano && c.Mes < prev.Mes) {
					t.Fatalf("competência decreased at %s for due=%d close=%d: %v -> %v",
						d.Format("2006-01-02"), cfg.dueDay, cfg.closeDays, prev, c)
				}
			}
			prev = c
			d = d.AddDate(0, 0, 1)
		}
	}
}

func TestDueAndCloseDate(t *testing.T) {
	c := Competencia{Mes: 4, Ano: 2025}

	if got := DueDate(c, 10); !got.Equal(date(2025, 4, 10)) {
		t.Errorf("DueDate = %v, want 2025-04-10", got)
	}
	if got := DueDate(c, 31); !got.Equal(date(2025, 4, 28)) {
		t.Errorf("DueDate with clamped day = %v, want 2025-04-28", got)
	}
	if got := CloseDate(c, 10, 10); !got.Equal(date(2025, 3, 31)) {
		t.Errorf("CloseDate = %v, want 2025-03-31", got)
	}
	if got := CloseDate(c, 10, 0); !got.Equal(date(2025, 3, 31)) {
		t.Errorf("CloseDate with default window = %v, want 2025-03-31", got)
	}
}

func TestCurrentCompetencia(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		dueDay int
		want   Competencia
	}{
		{"before this month's due date", date(2025, 3, 5), 10, Competencia{3, 2025}},
		{"on the due date", date(2025, 3, 10), 10, Competencia{3, 2025}},
		{"after the due date", date(2025, 3, 11), 10, Competencia{4, 2025}},
		{"december rollover", date(2025, 12, 20), 10, Competencia{1, 2026}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CurrentCompetencia(tt.now, tt.dueDay); got != tt.want {
				t.Errorf("CurrentCompetencia(%s) = %v, want %v",
					tt.now.Format("2006-01-02"), got, tt.want)
			}
		})
	}
}

func TestAddMonthsClamped(t *testing.T) {
	tests := []struct {
		in     time.Time
		months int
		want   time.Time
	}{
		{date(2025, 1, 31), 1, date(2025, 2, 28)},
		{date(2024, 1, 31), 1, date(2024, 2, 29)}, // leap year
		{date(2025, 1, 31), 2, date(2025, 3, 31)},
		{date(2025, 1, 15), 3, date(2025, 4, 15)},
		{date(2025, 11, 30), 2, date(2026, 1, 30)},
		{date(2025, 12, 31), 2, date(2026, 2, 28)},
	}
	for _, tt := range tests {
		if got := AddMonthsClamped(tt.in, tt.months); !got.Equal(tt.want) {
			t.Errorf("AddMonthsClamped(%s, %d) = %v, want %v",
				tt.in.Format("2006-01-02"), tt.months, got, tt.want)
		}
	}
}
