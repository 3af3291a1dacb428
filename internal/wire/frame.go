// Package wire implements the frame codec (spec.md §4.4): encoding and
// decoding the JSON frames exchanged between engines, classifying their
// kind, and preserving unknown top-level keys for forward compatibility.
package wire

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates a Frame by which top-level key it carries.
type Kind int

const (
	KindUnknown Kind = iota
	KindHi
	KindBye
	KindGet
	KindPut
	KindDam
)

func (k Kind) String() string {
	switch k {
	case KindHi:
		return "hi"
	case KindBye:
		return "bye"
	case KindGet:
		return "get"
	case KindPut:
		return "put"
	case KindDam:
		return "dam"
	default:
		return "unknown"
	}
}

// Hi is the {hi:{version, peer_id}} handshake payload.
type Hi struct {
	Version string `json:"version"`
	PeerID  string `json:"peer_id"`
}

// Bye is the {bye:{peer_id}} disconnect payload.
type Bye struct {
	PeerID string `json:"peer_id"`
}

// Dam is the {dam:...} error payload. Fields mirror internal/dam's wire
// shape without importing it, keeping the codec free of a dependency on
// the error-model package (internal/dam imports wire, not the reverse).
type Dam struct {
	Message string `json:"dam"`
	Node    string `json:"node,omitempty"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Frame is the decoded, typed view of one wire message. Exactly one of
// Hi, Bye, Get, Put, Dam is populated, selected by Kind. Extra carries
// every top-level key the decoder did not recognize, verbatim, so encode
// reproduces them (spec.md §4.4 forward-compatibility guarantee).
type Frame struct {
	Kind Kind

	Hi  *Hi
	Bye *Bye
	Get map[string]any // query_shape, spec.md §4.4
	Put map[string]any // node_id -> node_payload
	Dam *Dam

	ID            string // "@", a fresh message id
	CorrelationID string // "#", the id of a prior message this acks

	Extra map[string]any
}

// ErrMalformed reports a frame that does not decode into a valid shape.
type ErrMalformed struct {
	Reason string
}

func (e *ErrMalformed) Error() string {
	return fmt.Sprintf("wire: malformed frame: %s", e.Reason)
}

// NewHi builds a handshake frame.
func NewHi(id, version, peerID string) Frame {
	return Frame{Kind: KindHi, ID: id, Hi: &Hi{Version: version, PeerID: peerID}}
}

// NewBye builds a disconnect frame.
func NewBye(id, peerID string) Frame {
	return Frame{Kind: KindBye, ID: id, Bye: &Bye{PeerID: peerID}}
}

// NewGet builds a query frame.
func NewGet(id string, query map[string]any) Frame {
	return Frame{Kind: KindGet, ID: id, Get: query}
}

// NewPut builds a write frame, optionally acknowledging correlationID.
func NewPut(id, correlationID string, nodes map[string]any) Frame {
	return Frame{Kind: KindPut, ID: id, CorrelationID: correlationID, Put: nodes}
}

// NewDam builds an error frame.
func NewDam(id, correlationID string, dam Dam) Frame {
	return Frame{Kind: KindDam, ID: id, CorrelationID: correlationID, Dam: &dam}
}

// Encode serializes f to its canonical JSON wire form.
func Encode(f Frame) ([]byte, error) {
	obj := make(map[string]any, len(f.Extra)+3)
	for k, v := range f.Extra {
		obj[k] = v
	}

	switch f.Kind {
	case KindHi:
		if f.Hi == nil {
			return nil, &ErrMalformed{Reason: "hi frame missing payload"}
		}
		obj["hi"] = f.Hi
	case KindBye:
		if f.Bye == nil {
			return nil, &ErrMalformed{Reason: "bye frame missing payload"}
		}
		obj["bye"] = f.Bye
	case KindGet:
		if f.Get == nil {
			return nil, &ErrMalformed{Reason: "get frame missing query shape"}
		}
		obj["get"] = f.Get
	case KindPut:
		if f.Put == nil {
			return nil, &ErrMalformed{Reason: "put frame missing node payload"}
		}
		obj["put"] = f.Put
	case KindDam:
		if f.Dam == nil {
			return nil, &ErrMalformed{Reason: "dam frame missing payload"}
		}
		obj["dam"] = f.Dam.Message
		if f.Dam.Node != "" {
			obj["node"] = f.Dam.Node
		}
		if f.Dam.Field != "" {
			obj["field"] = f.Dam.Field
		}
		if f.Dam.Code != "" {
			obj["code"] = f.Dam.Code
		}
	default:
		return nil, &ErrMalformed{Reason: "cannot encode a frame of unknown kind"}
	}

	if f.ID != "" {
		obj["@"] = f.ID
	}
	if f.CorrelationID != "" {
		obj["#"] = f.CorrelationID
	}

	return json.Marshal(obj)
}

// Decode parses raw JSON into a Frame, classifying its Kind by which of
// the mutually-exclusive keys is present (spec.md §4.4). Unrecognized
// top-level keys are preserved in Extra.
func Decode(raw []byte) (Frame, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Frame{}, &ErrMalformed{Reason: "invalid JSON: " + err.Error()}
	}
	return decodeObject(obj)
}

func decodeObject(obj map[string]any) (Frame, error) {
	f := Frame{Extra: map[string]any{}}

	if v, ok := obj["@"]; ok {
		id, ok := v.(string)
		if !ok {
			return Frame{}, &ErrMalformed{Reason: "\"@\" must be a string"}
		}
		f.ID = id
		delete(obj, "@")
	}
	if v, ok := obj["#"]; ok {
		cid, ok := v.(string)
		if !ok {
			return Frame{}, &ErrMalformed{Reason: "\"#\" must be a string"}
		}
		f.CorrelationID = cid
		delete(obj, "#")
	}

	switch {
	case obj["hi"] != nil:
		hi, err := decodeHi(obj["hi"])
		if err != nil {
			return Frame{}, err
		}
		f.Kind, f.Hi = KindHi, hi
		delete(obj, "hi")
	case obj["bye"] != nil:
		bye, err := decodeBye(obj["bye"])
		if err != nil {
			return Frame{}, err
		}
		f.Kind, f.Bye = KindBye, bye
		delete(obj, "bye")
	case obj["get"] != nil:
		query, ok := obj["get"].(map[string]any)
		if !ok {
			return Frame{}, &ErrMalformed{Reason: "\"get\" must be an object"}
		}
		f.Kind, f.Get = KindGet, query
		delete(obj, "get")
	case obj["put"] != nil:
		nodes, ok := obj["put"].(map[string]any)
		if !ok {
			return Frame{}, &ErrMalformed{Reason: "\"put\" must be an object"}
		}
		f.Kind, f.Put = KindPut, nodes
		delete(obj, "put")
	case obj["dam"] != nil:
		msg, ok := obj["dam"].(string)
		if !ok {
			return Frame{}, &ErrMalformed{Reason: "\"dam\" must be a string"}
		}
		dam := &Dam{Message: msg}
		if node, ok := obj["node"].(string); ok {
			dam.Node = node
			delete(obj, "node")
		}
		if field, ok := obj["field"].(string); ok {
			dam.Field = field
			delete(obj, "field")
		}
		if code, ok := obj["code"].(string); ok {
			dam.Code = code
			delete(obj, "code")
		}
		f.Kind, f.Dam = KindDam, dam
		delete(obj, "dam")
	default:
		f.Kind = KindUnknown
	}

	for k, v := range obj {
		f.Extra[k] = v
	}
	if len(f.Extra) == 0 {
		f.Extra = nil
	}

	return f, nil
}

func decodeHi(raw any) (*Hi, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, &ErrMalformed{Reason: "\"hi\" must be an object"}
	}
	hi := &Hi{}
	if v, ok := m["version"].(string); ok {
		hi.Version = v
	}
	if v, ok := m["peer_id"].(string); ok {
		hi.PeerID = v
	}
	return hi, nil
}

func decodeBye(raw any) (*Bye, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, &ErrMalformed{Reason: "\"bye\" must be an object"}
	}
	bye := &Bye{}
	if v, ok := m["peer_id"].(string); ok {
		bye.PeerID = v
	}
	return bye, nil
}
