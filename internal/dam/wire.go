package dam

import (
	"strings"

	"hamsync/internal/wire"
)

// ToFrame renders err as the wire.Dam payload spec.md §4.4 describes:
// {dam: message, @, #?, node?, field?, code?}. originalID, if non-empty,
// becomes the frame's correlation id "#" — the message this error replies
// to.
func ToFrame(id, originalID string, err *Error) wire.Frame {
	return wire.NewDam(id, originalID, wire.Dam{
		Message: formatMessage(err),
		Node:    err.NodeID,
		Field:   err.Field,
		Code:    string(err.Kind),
	})
}

// formatMessage returns err.Message as the frame's free-text "dam" field,
// falling back to the kind name when the message is empty. The kind
// itself travels in "code"; a non-empty message is sent unchanged.
func formatMessage(err *Error) string {
	if err.Message != "" {
		return err.Message
	}
	return string(err.Kind)
}

// messagePatterns maps substrings seen in the reference system's free-text
// dam messages to a kind, for frames like spec.md §8 S5's
// `{dam:"Node \"x\" not found", ...}` that carry no "code" at all.
var messagePatterns = []struct {
	substr string
	kind   Kind
}{
	{"not found", NotFound},
	{"unauthorized", Unauthorized},
	{"timed out", Timeout},
	{"timeout", Timeout},
	{"malformed", Malformed},
	{"permission denied", Permission},
	{"quota", Limit},
	{"conflict", Conflict},
}

func kindFromMessage(message string) Kind {
	lower := strings.ToLower(message)
	for _, p := range messagePatterns {
		if strings.Contains(lower, p.substr) {
			return p.kind
		}
	}
	return Unknown
}

// FromFrame is the inverse of ToFrame: it reconstructs an *Error from a
// decoded dam frame. The frame's "code" field is authoritative for Kind
// when present and valid. When "code" is absent entirely, Kind is inferred
// from the free-text "dam" message against known reference-system wording;
// a code present but unrecognized still defaults to Unknown.
func FromFrame(f wire.Frame) (*Error, error) {
	if f.Kind != wire.KindDam || f.Dam == nil {
		return nil, New(Malformed, "frame is not a dam frame")
	}

	var kind Kind
	switch {
	case f.Dam.Code == "":
		kind = kindFromMessage(f.Dam.Message)
	case validKinds[Kind(f.Dam.Code)]:
		kind = Kind(f.Dam.Code)
	default:
		kind = Unknown
	}

	return &Error{
		Kind:    kind,
		Message: f.Dam.Message,
		Code:    f.Dam.Code,
		NodeID:  f.Dam.Node,
		Field:   f.Dam.Field,
		ErrorID: f.ID,
		AckID:   f.CorrelationID,
		Context: map[string]any{"ackId": f.CorrelationID},
	}, nil
}
