package core

// CategoryAmount is an amount aggregated by category label.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// CardUsage summarizes a card's unpaid credit exposure.
type CardUsage struct {
	CardID         int64
	Name           string
	Limit          Money
	AvailableLimit Money
	UnpaidTotal    Money
}

// MonthOverview is the dashboard aggregation for one year+month.
type MonthOverview struct {
	Year          int
	Month         int // 1-12
	TotalExpenses Money
	TotalIncomes  Money
	Balance       Money
	ByTipo        []CategoryAmount
	Cards         []CardUsage
}
