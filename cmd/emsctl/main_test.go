package main

import "testing"

func TestParseCoordsAcceptsParenthesizedPairs(t *testing.T) {
	coords, err := parseCoords([]string{"(0,0)", "1,2", "(3,4)"})
	if err != nil {
		t.Fatalf("parseCoords: %v", err)
	}
	want := []struct{ x, y int }{{0, 0}, {1, 2}, {3, 4}}
	for i, w := range want {
		if coords[i].X != w.x || coords[i].Y != w.y {
			t.Fatalf("coord %d: expected (%d,%d), got (%d,%d)", i, w.x, w.y, coords[i].X, coords[i].Y)
		}
	}
}

func TestParseCoordsRejectsMalformed(t *testing.T) {
	if _, err := parseCoords([]string{"0"}); err == nil {
		t.Fatalf("expected error for missing comma")
	}
	if _, err := parseCoords([]string{"a,b"}); err == nil {
		t.Fatalf("expected error for non-numeric coordinate")
	}
}

func TestParseCreateArgsParsesAllThreeFields(t *testing.T) {
	id, rows, cols, err := parseCreateArgs([]string{"42", "2", "3"})
	if err != nil {
		t.Fatalf("parseCreateArgs: %v", err)
	}
	if id != 42 || rows != 2 || cols != 3 {
		t.Fatalf("expected (42,2,3), got (%d,%d,%d)", id, rows, cols)
	}
}

func TestParseUint32RejectsNegative(t *testing.T) {
	if _, err := parseUint32("-1"); err == nil {
		t.Fatalf("expected error for negative input")
	}
}
