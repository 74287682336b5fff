package core

import "testing"

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"0", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestSplitInstallments(t *testing.T) {
	cases := []struct {
		total int64
		n     int
		first int64
		rest  int64
	}{
		{30000, 3, 10000, 10000},
		{10000, 3, 3334, 3333}, // remainder lands on the first installment
		{101, 2, 51, 50},
		{500, 1, 500, 0},
	}
	for _, tc := range cases {
		parts := SplitInstallments(Money{Cents: tc.total}, tc.n)
		if len(parts) != tc.n {
			t.Fatalf("total=%d n=%d: got %d parts", tc.total, tc.n, len(parts))
		}
		var sum int64
		for _, p := range parts {
			sum += p.Cents
		}
		if sum != tc.total {
			t.Errorf("total=%d n=%d: parts sum to %d", tc.total, tc.n, sum)
		}
		if parts[0].Cents != tc.first {
			t.Errorf("total=%d n=%d: first part %d, want %d", tc.total, tc.n, parts[0].Cents, tc.first)
		}
		for i := 1; i < tc.n; i++ {
			if parts[i].Cents != tc.rest {
				t.Errorf("total=%d n=%d: part %d = %d, want %d", tc.total, tc.n, i, parts[i].Cents, tc.rest)
			}
		}
	}
}

func TestFormatBRL(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{1234, "R$12,34"},
		{100, "R$1,00"},
		{5, "R$0,05"},
		{-250, "-R$2,50"},
	}
	for _, tc := range cases {
		if got := FormatBRL(tc.in); got != tc.want {
			t.Errorf("FormatBRL(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
