package embedding

import (
	"errors"
	"math"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		vec     Vector
		wantErr bool
	}{
		{"valid", Vector{0.1, 0.2, 0.3}, false},
		{"nil", nil, true},
		{"empty", Vector{}, true},
		{"nan", Vector{0.1, float32(math.NaN()), 0.3}, true},
		{"positive inf", Vector{float32(math.Inf(1))}, true},
		{"negative inf", Vector{0, float32(math.Inf(-1))}, true},
		{"zeros are fine", Vector{0, 0, 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.vec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%v) error = %v, wantErr %v", tt.vec, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("expected errors.Is(err, ErrValidation), got %v", err)
			}
		})
	}
}

func TestValidateDim(t *testing.T) {
	v := make(Vector, 64)

	if err := ValidateDim(v, 0); err != nil {
		t.Errorf("dim 0 should not lock dimensionality, got %v", err)
	}
	if err := ValidateDim(v, 64); err != nil {
		t.Errorf("matching dim should pass, got %v", err)
	}

	err := ValidateDim(v, 128)
	if err == nil {
		t.Fatal("expected error for 64-dim vector against 128-dim gallery")
	}
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Errorf("expected *ValidationError, got %T", err)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    Vector
		wantErr bool
	}{
		{"0,0,0.01", Vector{0, 0, 0.01}, false},
		{"[1, 0, 0]", Vector{1, 0, 0}, false},
		{" -0.5 ,2 ", Vector{-0.5, 2}, false},
		{"", nil, true},
		{"[]", nil, true},
		{"1,abc", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Parse(%q)[%d] = %v, want %v", tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	v := Vector{0.25, -1.5, 3}
	got, err := Parse(Format(v))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("element %d: got %v, want %v", i, got[i], v[i])
		}
	}
}

func TestClone(t *testing.T) {
	v := Vector{1, 2, 3}
	c := v.Clone()
	c[0] = 42
	if v[0] != 1 {
		t.Error("Clone shares backing array with original")
	}
	if Vector(nil).Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}
