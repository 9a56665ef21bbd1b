package filter

import "regexp"

// Stage is a lifecycle point at which the engine inspects a message.
type Stage string

const (
	// StageAfterModel runs right after the model produced a candidate response.
	StageAfterModel Stage = "after_model_response"
	// StageBeforeSend runs immediately before the message is transmitted.
	StageBeforeSend Stage = "before_send"
)

// Action is the effect a rule applies when it fires.
type Action string

const (
	// ActionBlock cancels delivery of the whole message.
	ActionBlock Action = "block"
	// ActionReplace rewrites every match with the rule's replacement text.
	ActionReplace Action = "replace"
	// ActionDeferToOracle asks the external judgment service whether the
	// message should be sent. Only valid at the after-model stage.
	ActionDeferToOracle Action = "defer_to_oracle"
)

// Disposition is the terminal outcome of one evaluation pass.
type Disposition string

const (
	DispositionSend         Disposition = "send"
	DispositionSendModified Disposition = "send_modified"
	DispositionCancelled    Disposition = "cancelled"
)

// Rule is one compiled filtering rule. Rules are immutable after compilation;
// disabled rules never make it into the active set.
type Rule struct {
	Pattern     *regexp.Regexp
	Source      string // the pattern text, for logging and reporting
	Stage       Stage
	Action      Action
	Replacement string
	Probability float64
	Description string
}

// Segment is one part of a chat message. Only segments of type "text" are
// matched and rewritten; everything else (images, stickers, replies) passes
// through untouched.
type Segment struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// SegmentText is the segment type rules operate on.
const SegmentText = "text"

// segmentReply marks quoted-reply segments, which cannot carry a message on
// their own once all text is gone.
const segmentReply = "reply"

// Message is one in-flight chat message handed to the engine for a pass.
type Message struct {
	StreamID string    `json:"stream_id"`
	Segments []Segment `json:"segments"`
	// History is the recent-conversation snapshot handed to the oracle if a
	// rule defers to it. Only meaningful at the after-model stage.
	History []string `json:"history"`
}

// Text returns the message's working text, the ordered concatenation of its
// text segments.
func (m Message) Text() string {
	return concatText(m.Segments)
}

// FiredRule records one rule whose action actually ran during a pass.
type FiredRule struct {
	Pattern string `json:"pattern"`
	Action  Action `json:"action"`
}

// Outcome is the result of one evaluation pass.
type Outcome struct {
	Disposition Disposition `json:"disposition"`
	// Text is the final working text. Meaningful for send and send_modified.
	Text string `json:"text"`
	// Segments is the message's segment list after any rewrite.
	Segments []Segment   `json:"segments"`
	Fired    []FiredRule `json:"fired_rules,omitempty"`
}
