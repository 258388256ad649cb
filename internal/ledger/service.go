// Package ledger implements the mutation operations that keep one
// month's denormalized aggregates (totals, categories, balances,
// transaction list) mutually consistent.
//
// Every operation is a plain read-modify-write sequence against the
// store: there is no transaction or compare-and-swap, so two concurrent
// mutations of the same month can race and the later aggregate write
// wins. That is an accepted trade-off for a single-user tool; the
// transaction records themselves use unique ids and never collide.
// A store failure mid-sequence aborts the operation without rolling back
// earlier writes.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

// EventPublisher fans ledger mutations out to interested consumers (the
// archive worker). A nil publisher disables events; publish failures are
// logged, never fatal.
type EventPublisher interface {
	PublishTransactionAdded(ctx context.Context, key core.MonthKey, txn core.Transaction) error
	PublishTransactionDeleted(ctx context.Context, key core.MonthKey, txn core.Transaction) error
}

// Service applies single logical operations to one month's record.
type Service struct {
	store  store.Store
	events EventPublisher
}

func NewService(st store.Store, events EventPublisher) *Service {
	return &Service{store: st, events: events}
}

// NewTransaction is the untrusted input for AddTransaction, before key
// normalization.
type NewTransaction struct {
	Type          string
	Amount        core.Money
	Category      string
	Description   string
	PaymentMethod string
	Timestamp     int64
}

// AddTransaction stores a new transaction and folds it into the month's
// aggregates. Unknown categories or payment methods are rejected before
// any store call. Returns the stored transaction with its generated id.
func (s *Service) AddTransaction(ctx context.Context, key core.MonthKey, in NewTransaction) (core.Transaction, error) {
	if err := key.Validate(); err != nil {
		return core.Transaction{}, err
	}
	txnType, err := core.ParseType(in.Type)
	if err != nil {
		return core.Transaction{}, err
	}
	category, err := core.ParseCategory(in.Category)
	if err != nil {
		return core.Transaction{}, err
	}
	method, err := core.ParsePaymentMethod(in.PaymentMethod)
	if err != nil {
		return core.Transaction{}, err
	}

	ts := in.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	txn := core.Transaction{
		ID:            core.NewTransactionID(ts),
		Type:          txnType,
		Amount:        in.Amount,
		Category:      category,
		Description:   strings.TrimSpace(in.Description),
		PaymentMethod: method,
		Timestamp:     ts,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	if err := txn.Validate(); err != nil {
		return core.Transaction{}, err
	}

	// 1. Store the transaction record.
	if err := s.store.Write(ctx, store.TransactionPath(key, txn.ID), txn); err != nil {
		return core.Transaction{}, fmt.Errorf("write transaction %s: %w", txn.ID, err)
	}

	// 2. Fold into monthly totals.
	totals, err := s.readTotals(ctx, key)
	if err != nil {
		return core.Transaction{}, err
	}
	if txn.Type == core.Expense {
		totals.Expenses = totals.Expenses.Add(txn.Amount)
		totals.Net = totals.Net.Sub(txn.Amount)
	} else {
		totals.Revenue = totals.Revenue.Add(txn.Amount)
		totals.Net = totals.Net.Add(txn.Amount)
	}
	if err := s.store.Write(ctx, store.TotalsPath(key), totals); err != nil {
		return core.Transaction{}, fmt.Errorf("write totals: %w", err)
	}

	// 3. Fold into category totals, then re-derive expenses and net from
	// the category sum so the derived aggregates never drift.
	if txn.Type == core.Expense {
		cats, err := s.readCategories(ctx, key)
		if err != nil {
			return core.Transaction{}, err
		}
		cats[txn.Category] = cats[txn.Category].Add(txn.Amount)
		if err := s.store.Write(ctx, store.CategoriesPath(key), cats); err != nil {
			return core.Transaction{}, fmt.Errorf("write categories: %w", err)
		}
		totals.Expenses, totals.Net = core.DeriveTotals(cats, totals.Revenue)
		if err := s.store.Write(ctx, store.TotalsPath(key), totals); err != nil {
			return core.Transaction{}, fmt.Errorf("write recomputed totals: %w", err)
		}
	}

	// 4. Adjust the payment-method balance.
	delta := txn.Amount
	if txn.Type == core.Expense {
		delta = delta.Neg()
	}
	if err := s.applyBalanceDelta(ctx, key, txn.PaymentMethod, delta); err != nil {
		return core.Transaction{}, err
	}

	s.publishAdded(ctx, key, txn)

	slog.InfoContext(ctx, "Transaction added",
		"id", txn.ID,
		"month", key.String(),
		"type", string(txn.Type),
		"amount_cents", txn.Amount.Cents,
		"category", string(txn.Category),
		"payment_method", string(txn.PaymentMethod))
	return txn, nil
}

// DeleteTransaction removes a transaction and applies the exact inverse
// of the aggregate updates performed at add time. The payment method is
// normalized with fallback to cash so records written before key
// normalization stay deletable.
func (s *Service) DeleteTransaction(ctx context.Context, key core.MonthKey, txn core.Transaction) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if txn.ID == "" {
		return fmt.Errorf("missing transaction id")
	}

	// 1. Remove the transaction record.
	if err := s.store.Write(ctx, store.TransactionPath(key, txn.ID), nil); err != nil {
		return fmt.Errorf("delete transaction %s: %w", txn.ID, err)
	}

	// 2. Reverse the totals update.
	totals, err := s.readTotals(ctx, key)
	if err != nil {
		return err
	}
	if txn.Type == core.Expense {
		totals.Expenses = totals.Expenses.Sub(txn.Amount)
		totals.Net = totals.Net.Add(txn.Amount)
	} else {
		totals.Revenue = totals.Revenue.Sub(txn.Amount)
		totals.Net = totals.Net.Sub(txn.Amount)
	}
	if err := s.store.Write(ctx, store.TotalsPath(key), totals); err != nil {
		return fmt.Errorf("write totals: %w", err)
	}

	// 3. Reverse the category update and re-derive.
	if txn.Type == core.Expense {
		cats, err := s.readCategories(ctx, key)
		if err != nil {
			return err
		}
		category, err := core.ParseCategory(string(txn.Category))
		if err != nil {
			category = core.CategoryOther
		}
		cats[category] = cats[category].Sub(txn.Amount)
		if err := s.store.Write(ctx, store.CategoriesPath(key), cats); err != nil {
			return fmt.Errorf("write categories: %w", err)
		}
		totals.Expenses, totals.Net = core.DeriveTotals(cats, totals.Revenue)
		if err := s.store.Write(ctx, store.TotalsPath(key), totals); err != nil {
			return fmt.Errorf("write recomputed totals: %w", err)
		}
	}

	// 4. Reverse the balance update.
	method := core.NormalizePaymentMethod(string(txn.PaymentMethod))
	delta := txn.Amount
	if txn.Type != core.Expense {
		delta = delta.Neg()
	}
	if err := s.applyBalanceDelta(ctx, key, method, delta); err != nil {
		return err
	}

	s.publishDeleted(ctx, key, txn)

	slog.InfoContext(ctx, "Transaction deleted",
		"id", txn.ID,
		"month", key.String(),
		"type", string(txn.Type),
		"amount_cents", txn.Amount.Cents)
	return nil
}

// GetTransaction loads a single transaction by id.
func (s *Service) GetTransaction(ctx context.Context, key core.MonthKey, id string) (core.Transaction, bool, error) {
	var txn core.Transaction
	found, err := s.store.Read(ctx, store.TransactionPath(key, id), &txn)
	if err != nil {
		return core.Transaction{}, false, fmt.Errorf("read transaction %s: %w", id, err)
	}
	return txn, found, nil
}

// UpdateBalance overwrites one payment-method balance. Balances are not
// derived from anything, so nothing else is recomputed.
func (s *Service) UpdateBalance(ctx context.Context, key core.MonthKey, method string, value core.Money) error {
	if err := key.Validate(); err != nil {
		return err
	}
	m, err := core.ParsePaymentMethod(method)
	if err != nil {
		return err
	}
	if err := s.store.Write(ctx, store.BalancePath(key, m), value); err != nil {
		return fmt.Errorf("write balance %s: %w", m, err)
	}
	slog.InfoContext(ctx, "Balance updated", "month", key.String(), "method", string(m), "cents", value.Cents)
	return nil
}

// UpdateCategoryTotal overwrites one category total, then re-derives the
// monthly expenses and net from the category sum.
func (s *Service) UpdateCategoryTotal(ctx context.Context, key core.MonthKey, category string, value core.Money) error {
	if err := key.Validate(); err != nil {
		return err
	}
	c, err := core.ParseCategory(category)
	if err != nil {
		return err
	}
	if err := s.store.Write(ctx, store.CategoryPath(key, c), value); err != nil {
		return fmt.Errorf("write category %s: %w", c, err)
	}
	cats, err := s.readCategories(ctx, key)
	if err != nil {
		return err
	}
	totals, err := s.readTotals(ctx, key)
	if err != nil {
		return err
	}
	totals.Expenses, totals.Net = core.DeriveTotals(cats, totals.Revenue)
	if err := s.store.Write(ctx, store.TotalsPath(key), totals); err != nil {
		return fmt.Errorf("write recomputed totals: %w", err)
	}
	slog.InfoContext(ctx, "Category total updated", "month", key.String(), "category", string(c), "cents", value.Cents)
	return nil
}

// TotalKind selects which headline figure UpdateMonthlyTotal overwrites.
type TotalKind string

const (
	TotalExpenses TotalKind = "expenses"
	TotalRevenue  TotalKind = "revenue"
)

// UpdateMonthlyTotal overwrites expenses or revenue and re-derives net.
// The new value is NOT pushed back into the categories, so an expenses
// edit here can disagree with the category sum until the next
// category-affecting operation recomputes it. That asymmetry is inherent
// to allowing both top-down and bottom-up edits of the same figure.
func (s *Service) UpdateMonthlyTotal(ctx context.Context, key core.MonthKey, kind TotalKind, value core.Money) error {
	if err := key.Validate(); err != nil {
		return err
	}
	totals, err := s.readTotals(ctx, key)
	if err != nil {
		return err
	}
	switch kind {
	case TotalExpenses:
		totals.Expenses = value
	case TotalRevenue:
		totals.Revenue = value
	default:
		return fmt.Errorf("unknown total kind %q", kind)
	}
	totals.Net = totals.Revenue.Sub(totals.Expenses)
	if err := s.store.Write(ctx, store.TotalsPath(key), totals); err != nil {
		return fmt.Errorf("write totals: %w", err)
	}
	slog.InfoContext(ctx, "Monthly total updated", "month", key.String(), "kind", string(kind), "cents", value.Cents)
	return nil
}

// UpdateNetWorthEntry overwrites one net-worth row. Keys beyond the
// balance set are free-form asset names.
func (s *Service) UpdateNetWorthEntry(ctx context.Context, key core.MonthKey, entry string, value core.Money) error {
	if err := key.Validate(); err != nil {
		return err
	}
	entry = strings.TrimSpace(entry)
	if entry == "" || strings.Contains(entry, "/") {
		return fmt.Errorf("invalid networth key %q", entry)
	}
	if err := s.store.Write(ctx, store.NetWorthEntryPath(key, entry), value); err != nil {
		return fmt.Errorf("write networth entry %s: %w", entry, err)
	}
	slog.InfoContext(ctx, "Net worth entry updated", "month", key.String(), "key", entry, "cents", value.Cents)
	return nil
}

// GetMonth returns the full record for a month. An absent record reads
// as the zero-valued default; partially-populated records are filled in.
func (s *Service) GetMonth(ctx context.Context, key core.MonthKey) (core.LedgerRecord, error) {
	if err := key.Validate(); err != nil {
		return core.LedgerRecord{}, err
	}
	var rec core.LedgerRecord
	found, err := s.store.Read(ctx, store.MonthPath(key), &rec)
	if err != nil {
		return core.LedgerRecord{}, fmt.Errorf("read month %s: %w", key, err)
	}
	if !found {
		return core.DefaultLedgerRecord(), nil
	}
	rec.FillDefaults()
	return rec, nil
}

// EnsureMonths creates default-valued records for every month in
// [fromYear, toYear], skipping months that already exist. Years are
// processed concurrently; months within a year stay sequential.
func (s *Service) EnsureMonths(ctx context.Context, fromYear, toYear int) (int, error) {
	if fromYear > toYear {
		return 0, fmt.Errorf("invalid year range %d-%d", fromYear, toYear)
	}
	if err := (core.MonthKey{Year: fromYear, Month: 1}).Validate(); err != nil {
		return 0, fmt.Errorf("from year %d: %w", fromYear, err)
	}
	if err := (core.MonthKey{Year: toYear, Month: 12}).Validate(); err != nil {
		return 0, fmt.Errorf("to year %d: %w", toYear, err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	created := make([]int, toYear-fromYear+1)
	for year := fromYear; year <= toYear; year++ {
		g.Go(func() error {
			for month := 1; month <= 12; month++ {
				key := core.MonthKey{Year: year, Month: month}
				var raw map[string]any
				found, err := s.store.Read(gctx, store.MonthPath(key), &raw)
				if err != nil {
					return fmt.Errorf("check month %s: %w", key, err)
				}
				if found {
					continue
				}
				if err := s.store.Write(gctx, store.MonthPath(key), core.DefaultLedgerRecord()); err != nil {
					return fmt.Errorf("create month %s: %w", key, err)
				}
				created[year-fromYear]++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	total := 0
	for _, n := range created {
		total += n
	}
	slog.InfoContext(ctx, "Months ensured", "from", fromYear, "to", toYear, "created", total)
	return total, nil
}

func (s *Service) readTotals(ctx context.Context, key core.MonthKey) (core.MonthlyTotals, error) {
	var totals core.MonthlyTotals
	if _, err := s.store.Read(ctx, store.TotalsPath(key), &totals); err != nil {
		return core.MonthlyTotals{}, fmt.Errorf("read totals: %w", err)
	}
	return totals, nil
}

func (s *Service) readCategories(ctx context.Context, key core.MonthKey) (core.CategoryTotals, error) {
	cats := core.DefaultCategoryTotals()
	found, err := s.store.Read(ctx, store.CategoriesPath(key), &cats)
	if err != nil {
		return nil, fmt.Errorf("read categories: %w", err)
	}
	if found {
		for _, c := range core.Categories {
			if _, ok := cats[c]; !ok {
				cats[c] = core.Money{}
			}
		}
	}
	return cats, nil
}

func (s *Service) readBalances(ctx context.Context, key core.MonthKey) (core.Balances, error) {
	bals := core.DefaultBalances()
	found, err := s.store.Read(ctx, store.BalancesPath(key), &bals)
	if err != nil {
		return nil, fmt.Errorf("read balances: %w", err)
	}
	if found {
		for _, m := range core.PaymentMethods {
			if _, ok := bals[m]; !ok {
				bals[m] = core.Money{}
			}
		}
	}
	return bals, nil
}

func (s *Service) applyBalanceDelta(ctx context.Context, key core.MonthKey, method core.PaymentMethod, delta core.Money) error {
	bals, err := s.readBalances(ctx, key)
	if err != nil {
		return err
	}
	bals[method] = bals[method].Add(delta)
	if err := s.store.Write(ctx, store.BalancesPath(key), bals); err != nil {
		return fmt.Errorf("write balances: %w", err)
	}
	return nil
}

func (s *Service) publishAdded(ctx context.Context, key core.MonthKey, txn core.Transaction) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishTransactionAdded(ctx, key, txn); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction-added event",
			"id", txn.ID, "month", key.String(), "error", err)
	}
}

func (s *Service) publishDeleted(ctx context.Context, key core.MonthKey, txn core.Transaction) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishTransactionDeleted(ctx, key, txn); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction-deleted event",
			"id", txn.ID, "month", key.String(), "error", err)
	}
}
