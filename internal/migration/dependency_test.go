package migration

import "testing"

func indexOf(order []string, name string) int {
	for i, n := range order {
		if n == name {
			return i
		}
	}
	return -1
}

func TestOrderSheetsByDependency_DependenciesComeFirst(t *testing.T) {
	sheets := map[string]*SheetPair{
		"Orders":   {Name: "Orders", Dependencies: []string{"Products"}},
		"Products": {Name: "Products"},
		"Reviews":  {Name: "Reviews", Dependencies: []string{"Products", "Orders"}},
	}
	order := OrderSheetsByDependency(sheets)
	if len(order) != 3 {
		t.Fatalf("expected 3 sheets, got %d", len(order))
	}
	if indexOf(order, "Products") > indexOf(order, "Orders") {
		t.Errorf("Products must come before Orders: order=%v", order)
	}
	if indexOf(order, "Orders") > indexOf(order, "Reviews") {
		t.Errorf("Orders must come before Reviews: order=%v", order)
	}
}

func TestOrderSheetsByDependency_IgnoresMissingDependency(t *testing.T) {
	sheets := map[string]*SheetPair{
		"Orders": {Name: "Orders", Dependencies: []string{"Ghost"}},
	}
	order := OrderSheetsByDependency(sheets)
	if len(order) != 1 || order[0] != "Orders" {
		t.Errorf("order = %v, want [Orders]", order)
	}
}

func TestOrderSheetsByDependency_ToleratesCycle(t *testing.T) {
	sheets := map[string]*SheetPair{
		"A": {Name: "A", Dependencies: []string{"B"}},
		"B": {Name: "B", Dependencies: []string{"A"}},
	}
	order := OrderSheetsByDependency(sheets)
	if len(order) != 2 {
		t.Fatalf("expected both sheets present despite cycle, got %v", order)
	}
}

func TestOrderSheetsByDependency_Deterministic(t *testing.T) {
	sheets := map[string]*SheetPair{
		"Zebra": {Name: "Zebra"},
		"Alpha": {Name: "Alpha"},
		"Mango": {Name: "Mango"},
	}
	first := OrderSheetsByDependency(sheets)
	for i := 0; i < 10; i++ {
		next := OrderSheetsByDependency(sheets)
		if len(next) != len(first) {
			t.Fatalf("run %d: length mismatch", i)
		}
		for j := range first {
			if first[j] != next[j] {
				t.Fatalf("run %d: order not deterministic: %v vs %v", i, first, next)
			}
		}
	}
}
