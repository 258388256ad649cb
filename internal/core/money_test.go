package core

import (
	"encoding/json"
	"testing"
)

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
		{"50", 5000, true},
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

func TestParseSignedDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1.23", 123, true},
		{"-1.23", -123, true},
		{"-200", -20000, true},
		{"0", 0, true},
		{"0.00", 0, true},
		{"-0", 0, true},
		{"0.004", 0, true}, // rounds to zero, still a valid edit
		{"-0.004", 0, true},
		{"", 0, false},
		{"-", 0, false},
		{"abc", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseSignedDecimalToCents(tc.in)
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

func TestMoneyJSON(t *testing.T) {
	raw, err := json.Marshal(Money{Cents: -1250})
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "-1250" {
		t.Fatalf("expected bare integer, got %s", raw)
	}

	var m Money
	if err := json.Unmarshal([]byte("4200"), &m); err != nil {
		t.Fatal(err)
	}
	if m.Cents != 4200 {
		t.Fatalf("expected 4200 cents, got %d", m.Cents)
	}

	// Historical records hold floats; tolerate them on the way in.
	if err := json.Unmarshal([]byte("4200.0"), &m); err != nil {
		t.Fatal(err)
	}
	if m.Cents != 4200 {
		t.Fatalf("expected 4200 cents from float, got %d", m.Cents)
	}
}
