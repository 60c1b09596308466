package commands

import (
	"testing"
	"time"
)

func TestRegistrationOp(t *testing.T) {
	now := time.Now()
	fresh := Command{CreatedAt: now, UpdatedAt: now}
	if got := registrationOp(fresh); got != "add" {
		t.Fatalf("first registration op = %q, want add", got)
	}
	updated := Command{CreatedAt: now, UpdatedAt: now.Add(time.Second)}
	if got := registrationOp(updated); got != "update" {
		t.Fatalf("re-registration op = %q, want update", got)
	}
}

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("  Deploy "); got != "deploy" {
		t.Fatalf("NormalizeName = %q", got)
	}
}

func TestValidateRegistration(t *testing.T) {
	cases := []struct {
		name    string
		cmd     string
		options []Option
		wantErr bool
	}{
		{"plain", "deploy", nil, false},
		{"with options", "remind", []Option{
			{Name: "when", Type: OptionString, Required: true},
			{Name: "channel", Type: OptionChannel},
		}, false},
		{"empty name", "", nil, true},
		{"uppercase name", "Deploy", nil, true},
		{"leading digit", "1deploy", nil, true},
		{"bad option type", "x", []Option{{Name: "a", Type: "float"}}, true},
		{"duplicate option", "x", []Option{
			{Name: "a", Type: OptionString},
			{Name: "a", Type: OptionInt},
		}, true},
		{"bad option name", "x", []Option{{Name: "A-b", Type: OptionString}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateRegistration(tc.cmd, tc.options)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateRegistration err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidateArguments(t *testing.T) {
	options := []Option{
		{Name: "when", Type: OptionString, Required: true},
		{Name: "count", Type: OptionInt},
		{Name: "silent", Type: OptionBool},
		{Name: "target", Type: OptionUser},
	}

	if err := ValidateArguments(options, map[string]any{"when": "tomorrow"}); err != nil {
		t.Fatalf("expected valid minimal arguments: %v", err)
	}
	if err := ValidateArguments(options, map[string]any{
		"when": "now", "count": 3, "silent": true, "target": "user-9",
	}); err != nil {
		t.Fatalf("expected valid full arguments: %v", err)
	}

	if err := ValidateArguments(options, map[string]any{}); err == nil {
		t.Fatalf("expected error for missing required argument")
	}
	if err := ValidateArguments(options, map[string]any{"when": "x", "count": "three"}); err == nil {
		t.Fatalf("expected error for wrong argument type")
	}
	if err := ValidateArguments(options, map[string]any{"when": "x", "bogus": 1}); err == nil {
		t.Fatalf("expected error for undeclared argument")
	}
}

func TestValidateArgumentsNoOptions(t *testing.T) {
	if err := ValidateArguments(nil, nil); err != nil {
		t.Fatalf("expected nil arguments to validate against empty options: %v", err)
	}
	if err := ValidateArguments(nil, map[string]any{"x": 1}); err == nil {
		t.Fatalf("expected error for argument with no declared options")
	}
}
