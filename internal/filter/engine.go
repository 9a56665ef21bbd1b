package filter

import (
	"context"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/raaihank/msgguard/internal/config"
	"github.com/raaihank/msgguard/internal/events"
	"github.com/raaihank/msgguard/internal/logger"
	"github.com/raaihank/msgguard/internal/metrics"
	"github.com/raaihank/msgguard/internal/oracle"
	"go.uber.org/zap"
)

// Engine evaluates messages against the active rule set, one stage at a time.
// It is safe for concurrent use: every pass reads one immutable rule-set
// snapshot, and reloads swap the whole snapshot atomically.
type Engine struct {
	rules       atomic.Pointer[ruleSet]
	oracle      oracle.Client
	affirmative string
	metrics     *metrics.Metrics
	events      *events.Hub
	draw        func() float64
	logger      *logger.Logger
}

// ruleSet is one immutable snapshot of the active configuration.
type ruleSet struct {
	enabled bool
	rules   []Rule
}

// Options carries the engine's optional collaborators. Any of them may be
// left nil; Draw defaults to the shared PRNG.
type Options struct {
	// Oracle judges deferred messages. Without a client every deferral fails
	// closed.
	Oracle oracle.Client
	// Affirmative is the exact verdict token that means "send".
	Affirmative string
	Metrics     *metrics.Metrics
	Events      *events.Hub
	// Draw produces one uniform value in [0,1) per gate decision. Tests
	// inject a fixed sequence here.
	Draw func() float64
}

// New compiles the configured rules and returns an engine holding them as its
// first snapshot. Malformed rules are returned as errors, one per rule, and
// excluded; the engine still runs with the rules that compiled.
func New(cfg config.FilterConfig, log *logger.Logger, opts Options) (*Engine, []error) {
	draw := opts.Draw
	if draw == nil {
		draw = rand.Float64
	}

	e := &Engine{
		oracle:      opts.Oracle,
		affirmative: opts.Affirmative,
		metrics:     opts.Metrics,
		events:      opts.Events,
		draw:        draw,
		logger:      log,
	}

	errs := e.swap(cfg)

	log.Info("Filter engine initialized",
		zap.Bool("enabled", cfg.Enabled),
		zap.Int("active_rules", len(e.rules.Load().rules)),
		zap.Int("rejected_rules", len(errs)),
	)

	return e, errs
}

// Reload compiles a new configuration and swaps it in atomically. Passes
// already in flight keep the snapshot they started with. Malformed rules are
// excluded and reported exactly as at startup.
func (e *Engine) Reload(cfg config.FilterConfig) []error {
	errs := e.swap(cfg)
	e.logger.Info("Filter rules reloaded",
		zap.Bool("enabled", cfg.Enabled),
		zap.Int("active_rules", len(e.rules.Load().rules)),
		zap.Int("rejected_rules", len(errs)),
	)
	return errs
}

func (e *Engine) swap(cfg config.FilterConfig) []error {
	rules, errs := CompileRules(cfg.Rules)
	for _, err := range errs {
		e.logger.Error("Rule rejected", zap.Error(err))
	}
	e.rules.Store(&ruleSet{enabled: cfg.Enabled, rules: rules})
	return errs
}

// ActiveRules returns how many rules the current snapshot holds.
func (e *Engine) ActiveRules() int {
	return len(e.rules.Load().rules)
}

// EvaluateAfterModel runs the after-model-response pass: the stage at which a
// full candidate response exists, so deferral to the oracle is available and
// msg.History is consulted.
func (e *Engine) EvaluateAfterModel(ctx context.Context, msg Message) Outcome {
	return e.evaluate(ctx, StageAfterModel, msg)
}

// EvaluateBeforeSend runs the final pass immediately before transmission.
func (e *Engine) EvaluateBeforeSend(ctx context.Context, msg Message) Outcome {
	return e.evaluate(ctx, StageBeforeSend, msg)
}

// evaluate is one full ordered walk of the stage's enabled rules. A block
// does not stop the walk: later rules still run so operators see everything
// the message tripped, but the disposition stays cancelled no matter what
// fires afterwards.
func (e *Engine) evaluate(ctx context.Context, stage Stage, msg Message) Outcome {
	start := time.Now()
	log := e.logger.WithStream(msg.StreamID)
	snap := e.rules.Load()

	origin := msg.Text()

	// No rules (or filtering disabled) means pass-through, not an error.
	if !snap.enabled || len(snap.rules) == 0 {
		return Outcome{Disposition: DispositionSend, Text: origin, Segments: msg.Segments}
	}

	// A message without text carries nothing for rules to act on; it passes
	// through untouched even when a pattern matches the empty string.
	if origin == "" {
		return Outcome{Disposition: DispositionSend, Segments: msg.Segments}
	}

	text := origin
	cancelled := false
	oracleWanted := false
	var fired []FiredRule

	for _, rule := range snap.rules {
		if rule.Stage != stage {
			continue
		}
		if !rule.Pattern.MatchString(text) {
			continue
		}

		// One uniform draw per matched rule, consumed whether or not the
		// gate opens.
		if e.draw() >= rule.Probability {
			log.Debug("Rule matched but probability gate held",
				zap.String("pattern", rule.Source),
				zap.Float64("probability", rule.Probability),
			)
			continue
		}

		fired = append(fired, FiredRule{Pattern: rule.Source, Action: rule.Action})
		if e.metrics != nil {
			e.metrics.RuleFired(rule.Source, string(rule.Action), string(stage))
		}
		e.publishRuleFire(msg.StreamID, stage, rule)

		switch rule.Action {
		case ActionBlock:
			log.Warn("Message blocked by rule",
				zap.String("pattern", rule.Source),
				zap.String("stage", string(stage)),
			)
			cancelled = true

		case ActionReplace:
			newText := rule.Pattern.ReplaceAllString(text, rule.Replacement)
			if newText != text {
				log.Info("Matched text replaced",
					zap.String("pattern", rule.Source),
					zap.String("new_text", newText),
				)
				text = newText
			}

		case ActionDeferToOracle:
			// Many rules may defer; the pass makes at most one call.
			oracleWanted = true
		}
	}

	if oracleWanted {
		if !e.consultOracle(ctx, log, msg.StreamID, text, msg.History) {
			cancelled = true
		}
	}

	outcome := e.finish(log, msg, stage, origin, text, cancelled, fired)
	if e.metrics != nil {
		e.metrics.ObservePass(string(stage), string(outcome.Disposition), time.Since(start))
	}
	return outcome
}

// finish maps the pass state onto a terminal disposition.
func (e *Engine) finish(log *logger.Logger, msg Message, stage Stage, origin, text string, cancelled bool, fired []FiredRule) Outcome {
	if cancelled {
		e.publishCancellation(msg.StreamID, stage, "rule or oracle verdict")
		return Outcome{Disposition: DispositionCancelled, Fired: fired}
	}

	if text == origin {
		return Outcome{Disposition: DispositionSend, Text: origin, Segments: msg.Segments, Fired: fired}
	}

	segments, ok := applyText(msg.Segments, text)
	if !ok {
		log.Info("Message content empty after filtering, cancelling send")
		e.publishCancellation(msg.StreamID, stage, "empty content")
		return Outcome{Disposition: DispositionCancelled, Fired: fired}
	}

	log.Debug("Message content updated",
		zap.String("original", origin),
		zap.String("modified", text),
	)
	return Outcome{Disposition: DispositionSendModified, Text: text, Segments: segments, Fired: fired}
}

// consultOracle makes the pass's single external judgment call. Anything but
// the exact affirmative token, including transport errors and empty replies,
// means "do not send".
func (e *Engine) consultOracle(ctx context.Context, log *logger.Logger, streamID, text string, history []string) bool {
	if e.oracle == nil {
		log.Error("Oracle deferral requested but no oracle client is configured, failing closed")
		if e.metrics != nil {
			e.metrics.OracleCall("unconfigured", 0)
		}
		return false
	}

	start := time.Now()
	verdict, err := e.oracle.Judge(ctx, text, history)
	duration := time.Since(start)

	if err != nil {
		log.Error("Oracle unavailable, failing closed", zap.Error(err))
		if e.metrics != nil {
			e.metrics.OracleCall("error", duration)
		}
		return false
	}

	send := strings.TrimSpace(verdict) == e.affirmative

	result := "negative"
	if send {
		result = "affirmative"
	}
	if e.metrics != nil {
		e.metrics.OracleCall(result, duration)
	}
	e.publishVerdict(streamID, verdict, send, duration)

	log.Info("Oracle verdict received",
		zap.String("verdict", verdict),
		zap.Bool("send", send),
		zap.Duration("duration", duration),
	)
	return send
}

func (e *Engine) publishRuleFire(streamID string, stage Stage, rule Rule) {
	if e.events == nil {
		return
	}
	e.events.BroadcastEvent(events.Event{
		Type:      events.EventTypeRuleFire,
		Timestamp: time.Now(),
		StreamID:  streamID,
		Data: events.RuleFireEvent{
			StreamID:    streamID,
			Stage:       string(stage),
			Pattern:     rule.Source,
			Action:      string(rule.Action),
			Description: rule.Description,
		},
	})
}

func (e *Engine) publishCancellation(streamID string, stage Stage, reason string) {
	if e.events == nil {
		return
	}
	e.events.BroadcastEvent(events.Event{
		Type:      events.EventTypeCancellation,
		Timestamp: time.Now(),
		StreamID:  streamID,
		Data: events.CancellationEvent{
			StreamID: streamID,
			Stage:    string(stage),
			Reason:   reason,
		},
	})
}

func (e *Engine) publishVerdict(streamID, verdict string, send bool, duration time.Duration) {
	if e.events == nil {
		return
	}
	e.events.BroadcastEvent(events.Event{
		Type:      events.EventTypeOracleVerdict,
		Timestamp: time.Now(),
		StreamID:  streamID,
		Data: events.OracleVerdictEvent{
			StreamID:   streamID,
			Verdict:    verdict,
			Send:       send,
			DurationMS: float64(duration.Nanoseconds()) / 1e6,
		},
	})
}
