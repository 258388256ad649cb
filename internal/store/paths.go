package store

import (
	"fmt"
	"strconv"

	"fintrack/internal/core"
)

// Persisted layout: months/{year}/{month} holds one core.LedgerRecord,
// with totals, categories, balances, networth and transactions/{id}
// addressable as sub-paths.

func MonthPath(k core.MonthKey) string {
	return fmt.Sprintf("months/%d/%d", k.Year, k.Month)
}

func TotalsPath(k core.MonthKey) string {
	return MonthPath(k) + "/totals"
}

func CategoriesPath(k core.MonthKey) string {
	return MonthPath(k) + "/categories"
}

func CategoryPath(k core.MonthKey, c core.Category) string {
	return CategoriesPath(k) + "/" + string(c)
}

func BalancesPath(k core.MonthKey) string {
	return MonthPath(k) + "/balances"
}

func BalancePath(k core.MonthKey, m core.PaymentMethod) string {
	return BalancesPath(k) + "/" + string(m)
}

func NetWorthPath(k core.MonthKey) string {
	return MonthPath(k) + "/networth"
}

func NetWorthEntryPath(k core.MonthKey, key string) string {
	return NetWorthPath(k) + "/" + key
}

func TransactionsPath(k core.MonthKey) string {
	return MonthPath(k) + "/transactions"
}

func TransactionPath(k core.MonthKey, id string) string {
	return TransactionsPath(k) + "/" + id
}

// ParseMonthPath extracts the MonthKey from a months/{year}/{month}...
// path. Returns an error for paths outside the months tree.
func ParseMonthPath(path string) (core.MonthKey, []string, error) {
	segs := SplitPath(path)
	if len(segs) < 3 || segs[0] != "months" {
		return core.MonthKey{}, nil, fmt.Errorf("path %q is not under months/", path)
	}
	year, err := strconv.Atoi(segs[1])
	if err != nil {
		return core.MonthKey{}, nil, fmt.Errorf("invalid year in path %q: %w", path, err)
	}
	month, err := strconv.Atoi(segs[2])
	if err != nil {
		return core.MonthKey{}, nil, fmt.Errorf("invalid month in path %q: %w", path, err)
	}
	return core.MonthKey{Year: year, Month: month}, segs[3:], nil
}
