package normalizer

import (
	"context"
	"strings"
	"testing"

	"fintrack/internal/core"
	"fintrack/internal/store"
	"fintrack/internal/store/memory"
)

func seedLegacyMonth(t *testing.T, st *memory.Store, key core.MonthKey) {
	t.Helper()
	ctx := context.Background()

	// Balances written before key normalization: mixed case plus the
	// recurring "casht" typo.
	err := st.Write(ctx, store.BalancesPath(key), map[string]int64{
		"Casht":   -5000,
		"PayPal":  1200,
		"n26":     30000,
		"Monzo":   777, // unknown even after lowercasing; dropped
		"revolut": 0,
	})
	if err != nil {
		t.Fatal(err)
	}

	err = st.Write(ctx, store.TransactionsPath(key), map[string]core.Transaction{
		"1_aa": {
			ID:            "1_aa",
			Type:          core.Expense,
			Amount:        core.Money{Cents: 5000},
			Category:      core.CategoryFood,
			Description:   "legacy",
			PaymentMethod: "PayPal",
			Timestamp:     1,
		},
		"2_bb": {
			ID:            "2_bb",
			Type:          core.Revenue,
			Amount:        core.Money{Cents: 100},
			Category:      core.CategoryOther,
			Description:   "already clean",
			PaymentMethod: core.MethodCash,
			Timestamp:     2,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRunNormalizesLegacyData(t *testing.T) {
	st := memory.New()
	key := core.MonthKey{Year: 2025, Month: 3}
	seedLegacyMonth(t, st, key)

	logs, err := New(st).Run(context.Background(), []int{2025})
	if err != nil {
		t.Fatal(err)
	}

	var bals map[string]core.Money
	if _, err := st.Read(context.Background(), store.BalancesPath(key), &bals); err != nil {
		t.Fatal(err)
	}
	if bals["cash"].Cents != -5000 {
		t.Fatalf("casht typo not folded into cash: %v", bals)
	}
	if _, ok := bals["casht"]; ok {
		t.Fatal("legacy casht key survived")
	}
	if bals["paypal"].Cents != 1200 {
		t.Fatalf("paypal = %d, want 1200", bals["paypal"].Cents)
	}
	if bals["n26"].Cents != 30000 {
		t.Fatalf("n26 = %d, want 30000", bals["n26"].Cents)
	}
	if _, ok := bals["Monzo"]; ok {
		t.Fatal("unknown legacy key survived")
	}
	if len(bals) != len(core.PaymentMethods) {
		t.Fatalf("balances hold %d keys, want the canonical %d", len(bals), len(core.PaymentMethods))
	}

	var txns map[string]core.Transaction
	if _, err := st.Read(context.Background(), store.TransactionsPath(key), &txns); err != nil {
		t.Fatal(err)
	}
	if txns["1_aa"].PaymentMethod != "paypal" {
		t.Fatalf("transaction method = %q, want paypal", txns["1_aa"].PaymentMethod)
	}
	// Everything else is untouched.
	if txns["1_aa"].Amount.Cents != 5000 || txns["1_aa"].Timestamp != 1 {
		t.Fatalf("normalization altered amount or timestamp: %+v", txns["1_aa"])
	}
	if txns["2_bb"].PaymentMethod != core.MethodCash {
		t.Fatalf("clean transaction rewritten: %+v", txns["2_bb"])
	}

	if len(logs) == 0 || logs[len(logs)-1] != "payment method normalization completed" {
		t.Fatalf("unexpected logs: %v", logs)
	}
}

func TestRunNormalizesCashtIntoCash(t *testing.T) {
	st := memory.New()
	key := core.MonthKey{Year: 2025, Month: 3}
	seedLegacyMonth(t, st, key)

	if _, err := New(st).Run(context.Background(), []int{2025}); err != nil {
		t.Fatal(err)
	}

	var bals core.Balances
	if _, err := st.Read(context.Background(), store.BalancesPath(key), &bals); err != nil {
		t.Fatal(err)
	}
	if bals[core.MethodCash].Cents != -5000 {
		t.Fatalf("cash = %d, want -5000 from casht", bals[core.MethodCash].Cents)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	st := memory.New()
	key := core.MonthKey{Year: 2025, Month: 3}
	seedLegacyMonth(t, st, key)

	ctx := context.Background()
	n := New(st)
	if _, err := n.Run(ctx, []int{2025}); err != nil {
		t.Fatal(err)
	}

	var before map[string]any
	if _, err := st.Read(ctx, store.MonthPath(key), &before); err != nil {
		t.Fatal(err)
	}

	if _, err := n.Run(ctx, []int{2025}); err != nil {
		t.Fatal(err)
	}

	var after map[string]any
	if _, err := st.Read(ctx, store.MonthPath(key), &after); err != nil {
		t.Fatal(err)
	}
	if len(before) != len(after) {
		t.Fatalf("second run changed the record: %v vs %v", before, after)
	}
	var balsBefore, balsAfter core.Balances
	if _, err := st.Read(ctx, store.BalancesPath(key), &balsAfter); err != nil {
		t.Fatal(err)
	}
	balsBefore = core.DefaultBalances()
	balsBefore[core.MethodCash] = core.Money{Cents: -5000}
	balsBefore[core.MethodPayPal] = core.Money{Cents: 1200}
	balsBefore[core.MethodN26] = core.Money{Cents: 30000}
	for m, v := range balsBefore {
		if balsAfter[m] != v {
			t.Fatalf("%s = %d after second run, want %d", m, balsAfter[m].Cents, v.Cents)
		}
	}
}

func TestRunSkipsAbsentMonths(t *testing.T) {
	st := memory.New()
	logs, err := New(st).Run(context.Background(), []int{2025})
	if err != nil {
		t.Fatal(err)
	}
	skipped := 0
	for _, l := range logs {
		if strings.Contains(l, "no data") {
			skipped++
		}
	}
	if skipped != 12 {
		t.Fatalf("expected 12 skip entries, got %d (%v)", skipped, logs)
	}
}
