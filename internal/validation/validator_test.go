// Tripvault - Trip Report Aggregation and Translation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripvault

package validation

import (
	"strings"
	"testing"
)

type sampleConfig struct {
	Port     int    `validate:"gte=1,lte=65535"`
	LogLevel string `validate:"oneof=trace debug info warn error"`
	DataDir  string `validate:"required"`
}

func TestValidateStructPasses(t *testing.T) {
	cfg := sampleConfig{Port: 5000, LogLevel: "info", DataDir: "/data"}
	if err := ValidateStruct(&cfg); err != nil {
		t.Fatalf("expected valid struct, got %v", err)
	}
}

func TestValidateStructCollectsAllFailures(t *testing.T) {
	cfg := sampleConfig{Port: 0, LogLevel: "verbose", DataDir: ""}
	err := ValidateStruct(&cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if len(err.Fields) != 3 {
		t.Fatalf("expected 3 field errors, got %d: %v", len(err.Fields), err)
	}
}

func TestTranslatedMessages(t *testing.T) {
	cfg := sampleConfig{Port: 70000, LogLevel: "info", DataDir: "/data"}
	err := ValidateStruct(&cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "less than or equal to 65535") {
		t.Errorf("expected lte message, got %q", msg)
	}
}

func TestValidatorIsSingleton(t *testing.T) {
	if Validator() != Validator() {
		t.Error("expected the same validator instance on repeated calls")
	}
}
