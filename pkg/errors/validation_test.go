package errors

import (
	"strings"
	"testing"
)

func TestValidateDescription(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "Worker slipped on wet floor", false},
		{"exactly minimum", strings.Repeat("x", 10), false},
		{"trimmed to minimum", "  " + strings.Repeat("x", 10) + "  ", false},

		{"empty", "", true},
		{"whitespace only", "   \t  ", true},
		{"too short", "oops", true},
		{"padding does not count", "  short  ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDescription(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDescription(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidInput) {
				t.Errorf("ValidateDescription(%q) returned wrong code: %v", tt.input, err)
			}
		})
	}
}

func TestValidateLevel(t *testing.T) {
	tests := []struct {
		level   int
		wantErr bool
	}{
		{1, false},
		{3, false},
		{5, false},
		{0, true},
		{-1, true},
		{6, true},
		{7, true},
	}

	for _, tt := range tests {
		err := ValidateLevel(tt.level)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateLevel(%d) error = %v, wantErr %v", tt.level, err, tt.wantErr)
		}
	}
}

func TestValidateNodeName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "Equipment failure", false},
		{"single char", "x", false},

		{"empty", "", true},
		{"blank", "   ", true},
		{"tabs", "\t\t", true},
		{"too long", strings.Repeat("a", 300), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNodeName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateNodeName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidName) {
				t.Errorf("ValidateNodeName(%q) returned wrong code: %v", tt.input, err)
			}
		})
	}
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "jdoe", false},
		{"with digits", "user42", false},

		{"empty", "", true},
		{"with space", "j doe", true},
		{"control char", "j\x01doe", true},
		{"too long", strings.Repeat("a", 100), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUsername(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateTitle(t *testing.T) {
	if err := ValidateTitle("Forklift incident"); err != nil {
		t.Errorf("ValidateTitle(valid) = %v, want nil", err)
	}
	if err := ValidateTitle("  "); err == nil {
		t.Error("ValidateTitle(blank) = nil, want error")
	}
}
