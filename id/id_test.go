package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/xraph/credits/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"ReservationID", id.NewReservationID, "rsv_"},
		{"GrantID", id.NewGrantID, "grnt_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"ReservationID", id.NewReservationID, id.ParseReservationID},
		{"GrantID", id.NewGrantID, id.ParseGrantID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	if _, err := id.ParseReservationID(id.NewGrantID().String()); err == nil {
		t.Error("ParseReservationID accepted a grant ID")
	}
	if _, err := id.ParseGrantID(id.NewReservationID().String()); err == nil {
		t.Error("ParseGrantID accepted a reservation ID")
	}
}

func TestParseInvalid(t *testing.T) {
	for _, s := range []string{"", "not-an-id", "rsv_not!valid"} {
		if _, err := id.Parse(s); err == nil {
			t.Errorf("Parse(%q) succeeded", s)
		}
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("nil ID String = %q", i.String())
	}
	v, err := i.Value()
	if err != nil || v != nil {
		t.Errorf("nil ID Value = %v, %v", v, err)
	}
}

func TestJSONAndScan(t *testing.T) {
	original := id.NewReservationID()

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded id.ID
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.String() != original.String() {
		t.Errorf("json round-trip: %q != %q", decoded.String(), original.String())
	}

	var scanned id.ID
	if err := scanned.Scan(original.String()); err != nil {
		t.Fatalf("scan string: %v", err)
	}
	if scanned.String() != original.String() {
		t.Errorf("scan mismatch: %q", scanned.String())
	}
	if err := scanned.Scan(nil); err != nil || !scanned.IsNil() {
		t.Errorf("scan nil: %v, nil=%v", err, scanned.IsNil())
	}
	if err := scanned.Scan(42); err == nil {
		t.Error("scan int should fail")
	}
}
