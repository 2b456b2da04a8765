package extract

import "testing"

func TestParseLenientStrict(t *testing.T) {
	raw := `{"items":[{"description":"CONCRETE","unit":"m3","quantity":2.5,"unit_price":400,"total":1000}],"summary":"ok"}`
	p, recovered, err := ParseLenient(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if recovered {
		t.Fatal("strict parse must not report recovered")
	}
	if len(p.Items) != 1 || p.Items[0].Description != "CONCRETE" {
		t.Fatalf("unexpected items: %+v", p.Items)
	}
	if p.Items[0].Total == nil || *p.Items[0].Total != 1000 {
		t.Fatalf("unexpected total: %+v", p.Items[0].Total)
	}
}

func TestParseLenientFence(t *testing.T) {
	raw := "```json\n{\"items\":[{\"description\":\"REBAR\"}]}\n```"
	p, recovered, err := ParseLenient(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !recovered {
		t.Fatal("fence-stripped parse must report recovered")
	}
	if len(p.Items) != 1 || p.Items[0].Description != "REBAR" {
		t.Fatalf("unexpected items: %+v", p.Items)
	}
}

func TestParseLenientBalancedScan(t *testing.T) {
	raw := `The extraction result is: {"items":[{"description":"PIPE {DN100}","quantity":"1,5"}]} hope this helps!`
	p, recovered, err := ParseLenient(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !recovered {
		t.Fatal("balanced-scan parse must report recovered")
	}
	if len(p.Items) != 1 {
		t.Fatalf("unexpected items: %+v", p.Items)
	}
	if p.Items[0].Quantity == nil || *p.Items[0].Quantity != 1.5 {
		t.Fatalf("quantity not normalized: %+v", p.Items[0].Quantity)
	}
}

func TestParseLenientBareArray(t *testing.T) {
	raw := `[{"description":"MORTAR","unit":"m3"}]`
	p, _, err := ParseLenient(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(p.Items) != 1 || p.Items[0].Unit != "m3" {
		t.Fatalf("unexpected items: %+v", p.Items)
	}
}

func TestParseLenientGarbage(t *testing.T) {
	if _, _, err := ParseLenient("I could not process this document."); err == nil {
		t.Fatal("expected error for non-JSON response")
	}
}

func TestParseLenientWrongShapeFailsSchema(t *testing.T) {
	if _, _, err := ParseLenient(`{"items":["just a string"]}`); err == nil {
		t.Fatal("expected error for non-object items")
	}
	if _, _, err := ParseLenient(`{"items":[{"description":"X","quantity":true}]}`); err == nil {
		t.Fatal("expected schema error for boolean quantity")
	}
}
