package filter

import (
	"errors"
	"strings"
	"testing"

	"github.com/raaihank/msgguard/internal/config"
)

func TestCompileRules(t *testing.T) {
	t.Run("ValidRulesPreserveOrder", func(t *testing.T) {
		rules, errs := CompileRules([]config.RuleConfig{
			{Pattern: "first", Stage: "before_send", Action: "block"},
			{Pattern: "second", Stage: "after_model_response", Action: "replace", Replacement: "x"},
			{Pattern: "third", Stage: "after_model_response", Action: "defer_to_oracle"},
		})
		if len(errs) != 0 {
			t.Fatalf("unexpected errors: %v", errs)
		}
		if len(rules) != 3 {
			t.Fatalf("expected 3 rules, got %d", len(rules))
		}
		for i, want := range []string{"first", "second", "third"} {
			if rules[i].Source != want {
				t.Errorf("rule %d: expected pattern %q, got %q", i, want, rules[i].Source)
			}
		}
	})

	t.Run("DefaultsApplied", func(t *testing.T) {
		rules, errs := CompileRules([]config.RuleConfig{
			{Pattern: "x", Stage: "before_send", Action: "replace"},
		})
		if len(errs) != 0 {
			t.Fatalf("unexpected errors: %v", errs)
		}
		if rules[0].Probability != 1.0 {
			t.Errorf("expected default probability 1, got %v", rules[0].Probability)
		}
		if rules[0].Replacement != "" {
			t.Errorf("expected empty default replacement, got %q", rules[0].Replacement)
		}
	})

	t.Run("DisabledRulesDroppedSilently", func(t *testing.T) {
		rules, errs := CompileRules([]config.RuleConfig{
			{Pattern: "x", Stage: "before_send", Action: "block", Enabled: boolPtr(false)},
		})
		if len(errs) != 0 {
			t.Fatalf("unexpected errors: %v", errs)
		}
		if len(rules) != 0 {
			t.Errorf("expected no rules, got %d", len(rules))
		}
	})

	t.Run("MalformedRuleDoesNotRejectOthers", func(t *testing.T) {
		rules, errs := CompileRules([]config.RuleConfig{
			{Pattern: "([", Stage: "before_send", Action: "block"},
			{Pattern: "good", Stage: "before_send", Action: "block"},
		})
		if len(errs) != 1 {
			t.Fatalf("expected 1 error, got %v", errs)
		}
		if len(rules) != 1 || rules[0].Source != "good" {
			t.Errorf("expected only the good rule to load, got %v", rules)
		}
	})

	rejections := []struct {
		name string
		rule config.RuleConfig
		want error
	}{
		{"EmptyPattern", config.RuleConfig{Pattern: "", Stage: "before_send", Action: "block"}, ErrEmptyPattern},
		{"ProbabilityTooHigh", config.RuleConfig{Pattern: "x", Stage: "before_send", Action: "block", Probability: floatPtr(1.5)}, ErrProbabilityRange},
		{"ProbabilityNegative", config.RuleConfig{Pattern: "x", Stage: "before_send", Action: "block", Probability: floatPtr(-0.1)}, ErrProbabilityRange},
		{"UnknownStage", config.RuleConfig{Pattern: "x", Stage: "mid_flight", Action: "block"}, ErrUnknownStage},
		{"UnknownAction", config.RuleConfig{Pattern: "x", Stage: "before_send", Action: "redact"}, ErrUnknownAction},
		{"DeferAtBeforeSend", config.RuleConfig{Pattern: "x", Stage: "before_send", Action: "defer_to_oracle"}, ErrOracleWrongStage},
	}

	for _, tc := range rejections {
		t.Run(tc.name, func(t *testing.T) {
			rules, errs := CompileRules([]config.RuleConfig{tc.rule})
			if len(rules) != 0 {
				t.Errorf("expected rule to be rejected, got %v", rules)
			}
			if len(errs) != 1 {
				t.Fatalf("expected 1 error, got %v", errs)
			}
			if !errors.Is(errs[0], tc.want) {
				t.Errorf("expected %v, got %v", tc.want, errs[0])
			}
		})
	}

	t.Run("InvalidRegexNamesPattern", func(t *testing.T) {
		_, errs := CompileRules([]config.RuleConfig{
			{Pattern: "([", Stage: "before_send", Action: "block"},
		})
		if len(errs) != 1 {
			t.Fatalf("expected 1 error, got %v", errs)
		}
		if got := errs[0].Error(); !strings.Contains(got, "([") {
			t.Errorf("error should name the offending pattern, got %q", got)
		}
	})
}
