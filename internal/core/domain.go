package core

import (
	"errors"
	"strings"
	"time"
)

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentDebit  PaymentMethod = "debit"
	PaymentCredit PaymentMethod = "credit"
)

const (
	CardCredit CardKind = "credit"
	CardDebit  CardKind = "debit"
)

type (
	// PaymentMethod is a closed enum validated at the input boundary.
	// Legacy free-text spellings are normalized by ParsePaymentMethod.
	PaymentMethod string

	CardKind string

	Money struct {
		Cents int64
	}

	Card struct {
		ID              int64
		UserID          int64
		Name            string
		Kind            CardKind
		LastDigits      string
		Color           string
		Limit           Money
		AvailableLimit  Money
		DueDay          int // 1-31; clamped to 28 when building due dates
		CloseDaysBefore int // invoice closes this many days before the due date
	}

	Expense struct {
		ID         int64
		UserID     int64
		Tipo       string // category label; series suffix "(i/N)" is cosmetic
		Amount     Money
		Method     PaymentMethod
		Fixed      bool
		Date       time.Time
		Parcelas   int
		Frequency  string
		CardID     int64 // 0 when not card-linked
		CategoryID int64 // 0 when uncategorized
		Notes      string
		SeriesID   string // uuid shared by all rows of one fixed/installment series
		// Billing period; set only for card-linked expenses.
		CompetenciaMes int
		CompetenciaAno int
	}

	InvoicePayment struct {
		ID             int64
		UserID         int64
		CardID         int64
		CompetenciaMes int
		CompetenciaAno int
		AmountPaid     Money
		Exported       bool
		CreatedAt      time.Time
	}

	Income struct {
		ID         int64
		UserID     int64
		Descricao  string
		Amount     Money
		Date       time.Time
		Fixed      bool
		CategoryID int64
	}

	Category struct {
		ID     int64
		UserID int64
		Name   string
		Kind   string // expense | income
		Color  string
	}

	// Threshold is a monthly budget cap for one category.
	Threshold struct {
		ID         int64
		UserID     int64
		CategoryID int64
		Mes        int
		Ano        int
		Limit      Money
	}

	// Plan is a savings goal.
	Plan struct {
		ID       int64
		UserID   int64
		Name     string
		Target   Money
		Saved    Money
		Deadline time.Time
	}
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidDate          = errors.New("invalid date")
	ErrEmptyTipo            = errors.New("empty expense category label")
	ErrInvalidMethod        = errors.New("invalid payment method")
	ErrInvalidCardKind      = errors.New("invalid card kind")
	ErrInvalidLastDigits    = errors.New("card last digits must be exactly 4 numbers")
	ErrInvalidDueDay        = errors.New("due day must be between 1 and 31")
	ErrInvalidCloseDays     = errors.New("closing days must be between 1 and 31")
	ErrInvalidParcelas      = errors.New("installment count must be at least 1")
	ErrFixedWithInstallment = errors.New("an expense cannot be fixed and parceled at once")
)

// ParsePaymentMethod normalizes user input into the closed enum. The legacy
// Portuguese spellings are accepted so imported data keeps working.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cash", "dinheiro", "money":
		return PaymentCash, nil
	case "debit", "debito", "débito", "cartao de debito", "cartão de débito":
		return PaymentDebit, nil
	case "credit", "credito", "crédito", "cartao de credito", "cartão de crédito":
		return PaymentCredit, nil
	}
	return "", ErrInvalidMethod
}

// IsCredit reports whether the method hits a credit card's limit.
func (m PaymentMethod) IsCredit() bool {
	return m == PaymentCredit
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (c Card) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("empty card name")
	}
	if c.Kind != CardCredit && c.Kind != CardDebit {
		return ErrInvalidCardKind
	}
	if len(c.LastDigits) != 4 {
		return ErrInvalidLastDigits
	}
	for _, r := range c.LastDigits {
		if r < '0' || r > '9' {
			return ErrInvalidLastDigits
		}
	}
	if c.Kind == CardCredit {
		if c.Limit.Cents <= 0 {
			return errors.New("credit card limit must be positive")
		}
		if c.DueDay < 1 || c.DueDay > 31 {
			return ErrInvalidDueDay
		}
		if c.CloseDaysBefore < 1 || c.CloseDaysBefore > 31 {
			return ErrInvalidCloseDays
		}
	}
	return nil
}

func (e Expense) Validate() error {
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if len(strings.TrimSpace(e.Tipo)) == 0 {
		return ErrEmptyTipo
	}
	if len(e.Tipo) > 200 {
		return errors.New("category label too long (max 200 characters)")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if _, err := ParsePaymentMethod(string(e.Method)); err != nil {
		return err
	}
	if e.Parcelas < 1 {
		return ErrInvalidParcelas
	}
	if e.Fixed && e.Parcelas > 1 {
		return ErrFixedWithInstallment
	}
	return nil
}

// IsCardLinked reports whether the expense belongs to a card's billing cycle.
func (e Expense) IsCardLinked() bool {
	return e.Method.IsCredit() && e.CardID > 0
}

func (i Income) Validate() error {
	if i.Date.IsZero() {
		return ErrInvalidDate
	}
	if strings.TrimSpace(i.Descricao) == "" {
		return errors.New("empty income description")
	}
	return i.Amount.Validate()
}
