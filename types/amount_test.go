package types

import (
	"encoding/json"
	"testing"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		display string
		wantErr bool
	}{
		{"Whole", "25", "25.00000000", false},
		{"Eight decimals", "25.00000000", "25.00000000", false},
		{"Half", "0.5", "0.50000000", false},
		{"Fifty", "50.0", "50.00000000", false},
		{"Rounds ninth digit", "1.123456789", "1.12345679", false},
		{"Negative", "-3.25", "-3.25000000", false},
		{"Padded", "  100 ", "100.00000000", false},
		{"Empty", "", "", true},
		{"Garbage", "abc", "", true},
		{"NaN", "NaN", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %s", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.display {
				t.Errorf("String: got %s, want %s", got.String(), tt.display)
			}
		})
	}
}

func TestAmountConstructors(t *testing.T) {
	if Units(25) != MustParseAmount("25.00000000") {
		t.Errorf("Units(25) = %s", Units(25))
	}
	if AmountFromFloat(0.1) != MustParseAmount("0.1") {
		t.Errorf("AmountFromFloat(0.1) = %s", AmountFromFloat(0.1))
	}
	if !Units(1).IsPositive() || Units(0).IsPositive() {
		t.Error("IsPositive mismatch")
	}
	if !Amount(0).IsZero() {
		t.Error("IsZero mismatch")
	}
	if got := Units(3).Float64(); got != 3 {
		t.Errorf("Float64: got %v, want 3", got)
	}
}

func TestAmountJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Amount
	}{
		{"String", `"25.00000000"`, Units(25)},
		{"Number", `50`, Units(50)},
		{"Fraction number", `0.25`, MustParseAmount("0.25")},
		{"Null", `null`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a Amount
			if err := json.Unmarshal([]byte(tt.input), &a); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if a != tt.want {
				t.Errorf("got %s, want %s", a, tt.want)
			}
		})
	}

	data, err := json.Marshal(Units(100))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"100.00000000"` {
		t.Errorf("marshal: got %s", data)
	}

	var a Amount
	if err := json.Unmarshal([]byte(`true`), &a); err == nil {
		t.Error("expected error for boolean input")
	}
}
