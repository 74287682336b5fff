package core

import (
	"testing"
	"time"
)

func TestReplicaDates(t *testing.T) {
	tests := []struct {
		name string
		base time.Time
		want []time.Time
	}{
		{
			name: "mid-month day carries unchanged",
			base: date(2025, 10, 15),
			want: []time.Time{date(2025, 11, 15), date(2025, 12, 15)},
		},
		{
			name: "month-end base pins replicas to each month's last day",
			base: date(2025, 9, 30),
			want: []time.Time{date(2025, 10, 31), date(2025, 11, 30), date(2025, 12, 31)},
		},
		{
			name: "day 31 clamps in shorter months",
			base: date(2025, 1, 31),
			want: []time.Time{
				date(2025, 2, 28), date(2025, 3, 31), date(2025, 4, 30),
				date(2025, 5, 31), date(2025, 6, 30), date(2025, 7, 31),
				date(2025, 8, 31), date(2025, 9, 30), date(2025, 10, 31),
				date(2025, 11, 30), date(2025, 12, 31),
			},
		},
		{
			name: "december base produces nothing",
			base: date(2025, 12, 5),
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReplicaDates(tt.base)
			if len(got) != len(tt.want) {
				t.Fatalf("ReplicaDates returned %d dates, want %d: %v", len(got), len(tt.want), got)
			}
			for i := range got {
				if !got[i].Equal(tt.want[i]) {
					t.Errorf("replica %d = %s, want %s", i,
						got[i].Format("2006-01-02"), tt.want[i].Format("2006-01-02"))
				}
			}
		})
	}
}

func TestReplicaDates_Bound(t *testing.T) {
	// Month M produces exactly 12-M replicas, all inside the base year.
	for m := 1; m <= 12; m++ {
		base := date(2025, m, 10)
		got := ReplicaDates(base)
		if len(got) != 12-m {
			t.Errorf("month %d: got %d replicas, want %d", m, len(got), 12-m)
		}
		for _, d := range got {
			if d.Year() != 2025 {
				t.Errorf("month %d: replica %s escaped the year", m, d.Format("2006-01-02"))
			}
		}
	}
}
