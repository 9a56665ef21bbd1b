package filter

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/raaihank/msgguard/internal/config"
)

// Rule validation errors. A rule failing any of these is excluded from the
// active set; the remaining rules still load.
var (
	ErrEmptyPattern     = errors.New("pattern is empty")
	ErrProbabilityRange = errors.New("probability must be within [0,1]")
	ErrUnknownStage     = errors.New("unknown stage")
	ErrUnknownAction    = errors.New("unknown action")
	ErrOracleWrongStage = errors.New("defer_to_oracle is only valid at stage after_model_response")
)

// CompileRules turns configured rule records into compiled rules, preserving
// their order. Disabled rules are dropped silently; malformed rules are
// dropped with one error each, naming the offending pattern.
func CompileRules(records []config.RuleConfig) ([]Rule, []error) {
	rules := make([]Rule, 0, len(records))
	var errs []error

	for i, rec := range records {
		if !rec.EnabledOrDefault() {
			continue
		}

		rule, err := compileRule(rec)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %d (pattern %q): %w", i, rec.Pattern, err))
			continue
		}
		rules = append(rules, rule)
	}

	return rules, errs
}

func compileRule(rec config.RuleConfig) (Rule, error) {
	if rec.Pattern == "" {
		return Rule{}, ErrEmptyPattern
	}

	pattern, err := regexp.Compile(rec.Pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("invalid pattern: %w", err)
	}

	probability := rec.ProbabilityOrDefault()
	if probability < 0 || probability > 1 {
		return Rule{}, fmt.Errorf("%w: %v", ErrProbabilityRange, probability)
	}

	stage := Stage(rec.Stage)
	switch stage {
	case StageAfterModel, StageBeforeSend:
	default:
		return Rule{}, fmt.Errorf("%w: %q", ErrUnknownStage, rec.Stage)
	}

	action := Action(rec.Action)
	switch action {
	case ActionBlock, ActionReplace:
	case ActionDeferToOracle:
		// There is no candidate-response context before a model response
		// exists, so a deferring rule at any other stage can never fire
		// meaningfully. Reject it loudly instead of silently skipping.
		if stage != StageAfterModel {
			return Rule{}, ErrOracleWrongStage
		}
	default:
		return Rule{}, fmt.Errorf("%w: %q", ErrUnknownAction, rec.Action)
	}

	return Rule{
		Pattern:     pattern,
		Source:      rec.Pattern,
		Stage:       stage,
		Action:      action,
		Replacement: rec.Replacement,
		Probability: probability,
		Description: rec.Description,
	}, nil
}
