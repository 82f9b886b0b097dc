package domain

import (
	"errors"
	"testing"
)

func TestAddLine_SumsDuplicatePairs(t *testing.T) {
	lines, err := AddLine(nil, CartLine{ProductID: "p", Quantity: 2})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	lines, err = AddLine(lines, CartLine{ProductID: "p", Quantity: 3})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(lines) != 1 || lines[0].Quantity != 5 {
		t.Fatalf("expected one line with qty 5, got %+v", lines)
	}
}

func TestAddLine_VariantsAreDistinctLines(t *testing.T) {
	lines, _ := AddLine(nil, CartLine{ProductID: "p", Variant: "M", Quantity: 1})
	lines, _ = AddLine(lines, CartLine{ProductID: "p", Variant: "L", Quantity: 1})
	lines, _ = AddLine(lines, CartLine{ProductID: "q", Quantity: 1})
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %+v", lines)
	}
	if lines[0].Variant != "M" || lines[1].Variant != "L" || lines[2].ProductID != "q" {
		t.Fatalf("expected insertion order preserved, got %+v", lines)
	}
}

func TestAddLine_RejectsNonPositive(t *testing.T) {
	for _, qty := range []int{0, -1} {
		if _, err := AddLine(nil, CartLine{ProductID: "p", Quantity: qty}); !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("qty %d: expected ErrInvalidQuantity, got %v", qty, err)
		}
	}
}

func TestAddLine_RejectsQuantityAboveCap(t *testing.T) {
	if _, err := AddLine(nil, CartLine{ProductID: "p", Quantity: MaxLineQuantity + 1}); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity for qty above cap, got %v", err)
	}
	lines, err := AddLine(nil, CartLine{ProductID: "p", Quantity: MaxLineQuantity})
	if err != nil {
		t.Fatalf("add at cap: %v", err)
	}
	if _, err := AddLine(lines, CartLine{ProductID: "p", Quantity: 1}); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity when the sum passes the cap, got %v", err)
	}
	if lines[0].Quantity != MaxLineQuantity {
		t.Fatalf("rejected add must leave the line alone, got %+v", lines)
	}

	// A huge quantity must not wrap into an accepted negative sum.
	big := int(^uint(0) >> 1)
	if _, err := AddLine([]CartLine{{ProductID: "p", Quantity: 1}}, CartLine{ProductID: "p", Quantity: big}); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity for max int, got %v", err)
	}
}

func TestMergeLine_CapsSum(t *testing.T) {
	lines := []CartLine{{ProductID: "p", Quantity: MaxLineQuantity - 1}}
	out := MergeLine(lines, CartLine{ProductID: "p", Quantity: 5})
	if len(out) != 1 || out[0].Quantity != MaxLineQuantity {
		t.Fatalf("expected capped quantity, got %+v", out)
	}
	out = MergeLine(out, CartLine{ProductID: "q", Quantity: 2})
	if len(out) != 2 || out[1].Quantity != 2 {
		t.Fatalf("expected appended line, got %+v", out)
	}
	if lines[0].Quantity != MaxLineQuantity-1 {
		t.Fatalf("input mutated: %+v", lines)
	}
}

func TestSubtractLines(t *testing.T) {
	lines := []CartLine{{ProductID: "p", Quantity: 3}, {ProductID: "q", Quantity: 1}, {ProductID: "r", Variant: "M", Quantity: 2}}
	taken := []CartLine{{ProductID: "p", Quantity: 1}, {ProductID: "q", Quantity: 1}, {ProductID: "r", Variant: "L", Quantity: 2}}

	out, changed := SubtractLines(lines, taken)
	if !changed {
		t.Fatalf("expected a change")
	}
	want := []CartLine{{ProductID: "p", Quantity: 2}, {ProductID: "r", Variant: "M", Quantity: 2}}
	if len(out) != len(want) || out[0] != want[0] || out[1] != want[1] {
		t.Fatalf("got %+v want %+v", out, want)
	}

	if _, changed := SubtractLines(lines, []CartLine{{ProductID: "zzz", Quantity: 1}}); changed {
		t.Fatalf("expected no change for absent lines")
	}
}

func TestAddLine_DoesNotMutateInput(t *testing.T) {
	orig := []CartLine{{ProductID: "p", Quantity: 1}}
	if _, err := AddLine(orig, CartLine{ProductID: "p", Quantity: 4}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if orig[0].Quantity != 1 {
		t.Fatalf("input mutated: %+v", orig)
	}
}

func TestSetQuantity(t *testing.T) {
	lines := []CartLine{{ProductID: "p", Quantity: 1}, {ProductID: "q", Quantity: 2}}

	out, found := SetQuantity(lines, "q", "", 7)
	if !found || out[1].Quantity != 7 {
		t.Fatalf("expected q updated, got %+v found=%v", out, found)
	}

	out, found = SetQuantity(lines, "p", "", 0)
	if !found || len(out) != 1 || out[0].ProductID != "q" {
		t.Fatalf("qty 0 should remove p, got %+v", out)
	}

	_, found = SetQuantity(lines, "missing", "", 3)
	if found {
		t.Fatalf("expected missing line to report not found")
	}
}

func TestRemoveLine_Absent(t *testing.T) {
	lines := []CartLine{{ProductID: "p", Variant: "S", Quantity: 1}}
	out, removed := RemoveLine(lines, "p", "M")
	if removed || len(out) != 1 {
		t.Fatalf("expected no-op, got %+v removed=%v", out, removed)
	}
}

func TestCartRef_Validate(t *testing.T) {
	cases := []struct {
		name string
		ref  CartRef
		ok   bool
	}{
		{"anonymous", AnonymousCart("sess"), true},
		{"account", AccountCart("user"), true},
		{"empty session", AnonymousCart("  "), false},
		{"zero", CartRef{}, false},
		{"both owners", CartRef{Kind: CartAccount, UserID: "u", SessionID: "s"}, false},
	}
	for _, tc := range cases {
		err := tc.ref.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidCartRef) {
			t.Fatalf("%s: expected ErrInvalidCartRef, got %v", tc.name, err)
		}
	}
}

func TestOrder_ProductIDsDistinct(t *testing.T) {
	o := Order{Lines: []OrderLine{{ProductID: "a", Variant: "S"}, {ProductID: "b"}, {ProductID: "a", Variant: "M"}}}
	ids := o.ProductIDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("unexpected ids %v", ids)
	}
}
