package filter

import "strings"

// concatText joins the data of every text segment in order. This is the
// working text rules match against; non-text segments never participate.
func concatText(segments []Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		if seg.Type == SegmentText {
			b.WriteString(seg.Data)
		}
	}
	return b.String()
}

// applyText rewrites the segment list so it carries newText. The first text
// segment receives the full rewritten text, later text segments are dropped,
// and non-text segments keep their positions. The second return value is
// false when nothing sendable remains: the text is empty and the leftover
// segments are absent or are quoted-reply markers only.
func applyText(segments []Segment, newText string) ([]Segment, bool) {
	if strings.TrimSpace(newText) == "" {
		if len(segments) <= 1 {
			return nil, false
		}
		rest := removeTextSegments(segments)
		if len(rest) == 0 || allReplies(rest) {
			return nil, false
		}
		return rest, true
	}

	if len(segments) == 1 && segments[0].Type == SegmentText {
		return []Segment{{Type: SegmentText, Data: newText}}, true
	}
	return replaceFirstTextSegment(segments, newText), true
}

// removeTextSegments returns a new list with every text segment dropped.
func removeTextSegments(segments []Segment) []Segment {
	result := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		if seg.Type != SegmentText {
			result = append(result, seg)
		}
	}
	return result
}

// replaceFirstTextSegment puts newText into the first text segment, drops the
// remaining text segments, and preserves non-text segment order.
func replaceFirstTextSegment(segments []Segment, newText string) []Segment {
	result := make([]Segment, 0, len(segments))
	replaced := false
	for _, seg := range segments {
		if seg.Type != SegmentText {
			result = append(result, seg)
			continue
		}
		if !replaced {
			result = append(result, Segment{Type: SegmentText, Data: newText})
			replaced = true
		}
	}
	return result
}

func allReplies(segments []Segment) bool {
	for _, seg := range segments {
		if seg.Type != segmentReply {
			return false
		}
	}
	return true
}
