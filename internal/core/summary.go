package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// DayAmount is the total spent on one date.
type DayAmount struct {
	Date   string  `json:"date"`
	Amount float64 `json:"amount"`
}

// Summary is the per-user overview shown next to the expense list.
type Summary struct {
	Username   string           `json:"username"`
	Total      float64          `json:"total"`
	Count      int              `json:"count"`
	ByCategory []CategoryAmount `json:"by_category"`
	Daily      []DayAmount      `json:"daily"` // ascending by date
	BillsTotal float64          `json:"bills_total"`
	BillCount  int              `json:"bill_count"`
	OpenBills  int              `json:"open_bills"`
}
