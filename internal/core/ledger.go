package core

type (
	// MonthlyTotals are the headline numbers for one month.
	// Net is always Revenue - Expenses.
	MonthlyTotals struct {
		Expenses Money `json:"expenses"`
		Revenue  Money `json:"revenue"`
		Net      Money `json:"net"`
	}

	// CategoryTotals accumulates expense amounts per category.
	CategoryTotals map[Category]Money

	// Balances holds the signed running balance per payment method.
	Balances map[PaymentMethod]Money

	// NetWorth extends the balance keys with free-form asset keys.
	NetWorth map[string]Money

	// LedgerRecord is the full aggregate document for one month.
	LedgerRecord struct {
		Totals       MonthlyTotals          `json:"totals"`
		Categories   CategoryTotals         `json:"categories"`
		Balances     Balances               `json:"balances"`
		NetWorth     NetWorth               `json:"networth,omitempty"`
		Transactions map[string]Transaction `json:"transactions"`
	}
)

// DefaultCategoryTotals returns the zero-valued category map with every
// key of the closed set present.
func DefaultCategoryTotals() CategoryTotals {
	cats := make(CategoryTotals, len(Categories))
	for _, c := range Categories {
		cats[c] = Money{}
	}
	return cats
}

// DefaultBalances returns the zero-valued balance map with every canonical
// payment-method key present.
func DefaultBalances() Balances {
	bals := make(Balances, len(PaymentMethods))
	for _, m := range PaymentMethods {
		bals[m] = Money{}
	}
	return bals
}

// DefaultLedgerRecord is the lazily-created record for a month with no
// data yet.
func DefaultLedgerRecord() LedgerRecord {
	return LedgerRecord{
		Totals:       MonthlyTotals{},
		Categories:   DefaultCategoryTotals(),
		Balances:     DefaultBalances(),
		Transactions: map[string]Transaction{},
	}
}

// FillDefaults populates any sub-object absent from a partially-written
// record, and guarantees every enumerated key exists in the maps.
func (r *LedgerRecord) FillDefaults() {
	if r.Categories == nil {
		r.Categories = DefaultCategoryTotals()
	} else {
		for _, c := range Categories {
			if _, ok := r.Categories[c]; !ok {
				r.Categories[c] = Money{}
			}
		}
	}
	if r.Balances == nil {
		r.Balances = DefaultBalances()
	} else {
		for _, m := range PaymentMethods {
			if _, ok := r.Balances[m]; !ok {
				r.Balances[m] = Money{}
			}
		}
	}
	if r.Transactions == nil {
		r.Transactions = map[string]Transaction{}
	}
}

// DeriveTotals recomputes the derived aggregate pair from its inputs:
// expenses is the sum of all categories except Investments, net is
// revenue minus expenses. Aggregates are always re-derived from here
// rather than trusted as incremental counters.
func DeriveTotals(cats CategoryTotals, revenue Money) (expenses, net Money) {
	for c, v := range cats {
		if c == CategoryInvestments {
			continue
		}
		expenses = expenses.Add(v)
	}
	return expenses, revenue.Sub(expenses)
}
