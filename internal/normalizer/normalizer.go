// Package normalizer rewrites historical payment-method keys to their
// canonical lowercase form: balance map keys and the payment_method field
// of every transaction. The job is idempotent, never deletes a
// transaction, and never touches amounts or timestamps.
package normalizer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

type Normalizer struct {
	store store.Store
}

func New(st store.Store) *Normalizer {
	return &Normalizer{store: st}
}

// Run scans every month of the given years, normalizing as it goes, and
// returns a human-readable log of what it did. Years run concurrently;
// logs come back grouped by year in ascending order.
func (n *Normalizer) Run(ctx context.Context, years []int) ([]string, error) {
	sorted := append([]int(nil), years...)
	sort.Ints(sorted)

	var mu sync.Mutex
	logsByYear := make(map[int][]string, len(sorted))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for _, year := range sorted {
		g.Go(func() error {
			var logs []string
			for month := 1; month <= 12; month++ {
				monthLogs, err := n.normalizeMonth(gctx, core.MonthKey{Year: year, Month: month})
				if err != nil {
					return err
				}
				logs = append(logs, monthLogs...)
			}
			mu.Lock()
			logsByYear[year] = logs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []string
	for _, year := range sorted {
		out = append(out, logsByYear[year]...)
	}
	out = append(out, "payment method normalization completed")
	return out, nil
}

func (n *Normalizer) normalizeMonth(ctx context.Context, key core.MonthKey) ([]string, error) {
	var raw map[string]any
	found, err := n.store.Read(ctx, store.MonthPath(key), &raw)
	if err != nil {
		return nil, fmt.Errorf("read month %s: %w", key, err)
	}
	if !found {
		return []string{fmt.Sprintf("no data for %s, skipping", key)}, nil
	}

	logs := []string{fmt.Sprintf("processing %s", key)}

	balanceLogs, err := n.normalizeBalances(ctx, key)
	if err != nil {
		return nil, err
	}
	logs = append(logs, balanceLogs...)

	txnLogs, err := n.normalizeTransactions(ctx, key)
	if err != nil {
		return nil, err
	}
	logs = append(logs, txnLogs...)
	return logs, nil
}

// normalizeBalances rebuilds the balances map on canonical keys,
// folding legacy-cased keys into their lowercase slot. Values under
// unknown keys are dropped only if their lowercase form is also unknown,
// mirroring the one-time migration in the source data.
func (n *Normalizer) normalizeBalances(ctx context.Context, key core.MonthKey) ([]string, error) {
	var raw map[string]core.Money
	found, err := n.store.Read(ctx, store.BalancesPath(key), &raw)
	if err != nil {
		return nil, fmt.Errorf("read balances for %s: %w", key, err)
	}
	if !found {
		return []string{fmt.Sprintf("no balances for %s, skipping", key)}, nil
	}

	clean := core.DefaultBalances()
	changed := false
	for oldKey, value := range raw {
		method, err := core.ParsePaymentMethod(oldKey)
		if err != nil {
			changed = true
			continue
		}
		clean[method] = value
		if oldKey != string(method) {
			changed = true
		}
	}
	if !changed && len(raw) == len(clean) {
		return nil, nil
	}
	if err := n.store.Write(ctx, store.BalancesPath(key), clean); err != nil {
		return nil, fmt.Errorf("write balances for %s: %w", key, err)
	}
	return []string{fmt.Sprintf("migrated balances for %s", key)}, nil
}

func (n *Normalizer) normalizeTransactions(ctx context.Context, key core.MonthKey) ([]string, error) {
	var txns map[string]core.Transaction
	found, err := n.store.Read(ctx, store.TransactionsPath(key), &txns)
	if err != nil {
		return nil, fmt.Errorf("read transactions for %s: %w", key, err)
	}
	if !found || len(txns) == 0 {
		return []string{fmt.Sprintf("no transactions for %s, skipping", key)}, nil
	}

	updated := 0
	for id, txn := range txns {
		raw := string(txn.PaymentMethod)
		lowered := strings.ToLower(raw)
		if raw == lowered {
			continue
		}
		err := n.store.Update(ctx, store.TransactionPath(key, id), map[string]any{
			"payment_method": lowered,
		})
		if err != nil {
			return nil, fmt.Errorf("update transaction %s for %s: %w", id, key, err)
		}
		updated++
	}

	slog.InfoContext(ctx, "Transactions normalized", "month", key.String(), "updated", updated)
	return []string{fmt.Sprintf("migrated %d transactions for %s", updated, key)}, nil
}
