package core

import (
	"testing"
	"time"
)

func TestParsePaymentMethod(t *testing.T) {
	cases := []struct {
		in   string
		want PaymentMethod
		ok   bool
	}{
		{"credit", PaymentCredit, true},
		{"Credito", PaymentCredit, true},
		{"CARTÃO DE CRÉDITO", PaymentCredit, true},
		{"debit", PaymentDebit, true},
		{"débito", PaymentDebit, true},
		{"cash", PaymentCash, true},
		{"dinheiro", PaymentCash, true},
		{" credit ", PaymentCredit, true},
		{"pix", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParsePaymentMethod(tc.in)
		if tc.ok {
			if err != nil || got != tc.want {
				t.Errorf("ParsePaymentMethod(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
			}
		} else if err == nil {
			t.Errorf("ParsePaymentMethod(%q) expected error", tc.in)
		}
	}
}

func TestCardValidate(t *testing.T) {
	valid := Card{
		Name:            "Nubank",
		Kind:            CardCredit,
		LastDigits:      "4242",
		Limit:           Money{Cents: 100000},
		DueDay:          10,
		CloseDaysBefore: 10,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid card rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Card)
	}{
		{"empty name", func(c *Card) { c.Name = " " }},
		{"bad kind", func(c *Card) { c.Kind = "voucher" }},
		{"short digits", func(c *Card) { c.LastDigits = "42" }},
		{"non-numeric digits", func(c *Card) { c.LastDigits = "42ab" }},
		{"zero limit on credit", func(c *Card) { c.Limit = Money{} }},
		{"due day out of range", func(c *Card) { c.DueDay = 32 }},
		{"close days out of range", func(c *Card) { c.CloseDaysBefore = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	// Debit cards skip the credit-only checks.
	debit := Card{Name: "Conta", Kind: CardDebit, LastDigits: "1111"}
	if err := debit.Validate(); err != nil {
		t.Errorf("debit card rejected: %v", err)
	}
}

func TestExpenseValidate(t *testing.T) {
	valid := Expense{
		Tipo:     "Mercado",
		Amount:   Money{Cents: 1500},
		Method:   PaymentCash,
		Date:     time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Parcelas: 1,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid expense rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Expense)
	}{
		{"zero date", func(e *Expense) { e.Date = time.Time{} }},
		{"empty tipo", func(e *Expense) { e.Tipo = "  " }},
		{"zero amount", func(e *Expense) { e.Amount = Money{} }},
		{"bad method", func(e *Expense) { e.Method = "boleto" }},
		{"zero parcelas", func(e *Expense) { e.Parcelas = 0 }},
		{"fixed and parceled", func(e *Expense) { e.Fixed = true; e.Parcelas = 3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)
			if err := e.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestIsCardLinked(t *testing.T) {
	e := Expense{Method: PaymentCredit, CardID: 3}
	if !e.IsCardLinked() {
		t.Error("credit expense with card should be card-linked")
	}
	e.CardID = 0
	if e.IsCardLinked() {
		t.Error("credit expense without card must not be card-linked")
	}
	e = Expense{Method: PaymentDebit, CardID: 3}
	if e.IsCardLinked() {
		t.Error("debit expense must not be card-linked")
	}
}
