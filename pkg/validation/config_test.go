package validation

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestConfigValidator_Required(t *testing.T) {
	cv := NewConfigValidator("Run")
	cv.Required("Store", "memory")
	if cv.Validate() != nil {
		t.Error("Required should pass for non-empty value")
	}

	cv = NewConfigValidator("Run")
	cv.Required("Store", "")
	err := cv.Validate()
	if err == nil || !strings.Contains(err.Error(), "Run.Store") {
		t.Errorf("Required error = %v, want mention of Run.Store", err)
	}
}

func TestConfigValidator_RangeInt(t *testing.T) {
	tests := []struct {
		value   int
		wantErr bool
	}{
		{0, true},
		{1, false},
		{4, false},
		{5, true},
	}
	for _, tt := range tests {
		cv := NewConfigValidator("Run").RangeInt("IOSize", tt.value, 1, 4)
		if (cv.Validate() != nil) != tt.wantErr {
			t.Errorf("RangeInt(%d) err = %v, wantErr %v", tt.value, cv.Validate(), tt.wantErr)
		}
	}
}

func TestConfigValidator_MinDuration(t *testing.T) {
	if NewConfigValidator("Run").MinDuration("Timeout", time.Second, time.Millisecond).Validate() != nil {
		t.Error("MinDuration should pass above the minimum")
	}
	if NewConfigValidator("Run").MinDuration("Timeout", time.Microsecond, time.Millisecond).Validate() == nil {
		t.Error("MinDuration should fail below the minimum")
	}
}

func TestConfigValidator_CustomAndWhen(t *testing.T) {
	sentinel := errors.New("bad peers")

	cv := NewConfigValidator("Run").
		When(true, func(cv *ConfigValidator) {
			cv.Custom("Peers", func() error { return sentinel })
		}).
		When(false, func(cv *ConfigValidator) {
			cv.Required("Never", "")
		})

	err := cv.Validate()
	if strings.Contains(err.Error(), "Never") {
		t.Errorf("skipped branch reported: %v", err)
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("Custom error should wrap the sentinel, got %v", err)
	}
}

func TestConfigValidator_MultipleErrors(t *testing.T) {
	err := NewConfigValidator("Run").
		Required("Store", "").
		RangeInt("WorldSize", -1, 1, 64).
		Validate()
	if err == nil {
		t.Fatal("Expected errors")
	}
	msg := err.Error()
	if !strings.Contains(msg, "Run.Store") || !strings.Contains(msg, "Run.WorldSize") {
		t.Errorf("Joined error should mention both fields, got %q", msg)
	}
}

func TestDefaultOr(t *testing.T) {
	if DefaultOrInt(0, 4) != 4 || DefaultOrInt(-1, 4) != 4 || DefaultOrInt(2, 4) != 2 {
		t.Error("DefaultOrInt returned wrong values")
	}
}
