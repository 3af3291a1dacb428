package ham

import (
	"encoding/json"
	"fmt"
)

// metadataJSON is the §3 metadata shape as it appears under a node payload's
// "_" key on the wire: {node_id, state, machine_state, machine_id}.
type metadataJSON struct {
	NodeID       string             `json:"node_id"`
	State        map[string]float64 `json:"state"`
	MachineState uint64             `json:"machine_state"`
	MachineID    string             `json:"machine_id"`
}

// linkJSON is a Link value's wire shape, per spec.md §3: `{ ref: node_id }`.
type linkJSON struct {
	Ref string `json:"ref"`
}

// EncodeValue renders v the way it appears at rest / on the wire.
func EncodeValue(v Value) (any, error) {
	switch v.Kind {
	case KindNull:
		return nil, nil
	case KindBool:
		return v.Bool, nil
	case KindNumber:
		return v.Number, nil
	case KindString:
		return v.String, nil
	case KindLink:
		return linkJSON{Ref: v.Link}, nil
	default:
		return nil, fmt.Errorf("ham: unrecognized value kind %d", v.Kind)
	}
}

// DecodeValue parses a raw JSON-decoded value (as produced by
// encoding/json.Unmarshal into an `any`) back into a Value, rejecting
// anything outside the closed §3 type set — including nested maps that
// aren't the one-key {"ref": ...} link shape (invariant §3-4).
func DecodeValue(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return BoolValue(x), nil
	case float64:
		return Number(x), nil
	case string:
		return String(x), nil
	case map[string]any:
		ref, ok := x["ref"]
		if !ok || len(x) != 1 {
			return Value{}, &ErrMalformed{Reason: "nested object value is not a {ref} link"}
		}
		refStr, ok := ref.(string)
		if !ok {
			return Value{}, &ErrMalformed{Reason: "link ref is not a string"}
		}
		return LinkTo(refStr), nil
	default:
		return Value{}, &ErrMalformed{Reason: fmt.Sprintf("unsupported value type %T", raw)}
	}
}

// EncodeNode renders n as the generic map[string]any shape used both as
// the JSON object hamsync stores at rest and as one entry of a put
// frame's node payload: field keys mapped to their encoded values, plus
// a "_" key carrying the HAM metadata.
func EncodeNode(n Node) (map[string]any, error) {
	obj := make(map[string]any, len(n.Fields)+1)
	for field, v := range n.Fields {
		enc, err := EncodeValue(v)
		if err != nil {
			return nil, err
		}
		obj[field] = enc
	}
	state := make(map[string]any, len(n.Meta.State))
	for field, ts := range n.Meta.State {
		state[field] = ts
	}
	obj["_"] = map[string]any{
		"node_id":       n.Meta.NodeID,
		"state":         state,
		"machine_state": n.Meta.MachineState,
		"machine_id":    n.Meta.MachineID,
	}
	return obj, nil
}

// MarshalNode renders n as the JSON object hamsync stores and sends on the
// wire: field keys mapped to their encoded values, plus a "_" key carrying
// the HAM metadata.
func MarshalNode(n Node) ([]byte, error) {
	obj, err := EncodeNode(n)
	if err != nil {
		return nil, err
	}
	return json.Marshal(obj)
}

// UnmarshalNode parses the wire/storage node payload shape back into a Node.
func UnmarshalNode(data []byte) (Node, error) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return Node{}, &ErrMalformed{Reason: err.Error()}
	}
	return nodeFromMap(obj)
}

// nodeFromMap decodes a node payload already unmarshaled into a generic map
// (used both by UnmarshalNode and by the wire codec, which decodes the
// surrounding frame first).
func nodeFromMap(obj map[string]any) (Node, error) {
	metaRaw, ok := obj["_"]
	if !ok {
		return Node{}, &ErrMalformed{Reason: "node payload missing metadata key \"_\""}
	}
	metaMap, ok := metaRaw.(map[string]any)
	if !ok {
		return Node{}, &ErrMalformed{Reason: "node metadata is not an object"}
	}

	metaBytes, err := json.Marshal(metaMap)
	if err != nil {
		return Node{}, &ErrMalformed{Reason: err.Error()}
	}
	var mj metadataJSON
	if err := json.Unmarshal(metaBytes, &mj); err != nil {
		return Node{}, &ErrMalformed{Reason: err.Error()}
	}
	if mj.NodeID == "" {
		return Node{}, &ErrMalformed{Reason: "missing node_id"}
	}
	if mj.State == nil {
		mj.State = make(map[string]float64)
	}

	fields := make(map[string]Value, len(obj)-1)
	for k, raw := range obj {
		if k == "_" {
			continue
		}
		v, err := DecodeValue(raw)
		if err != nil {
			return Node{}, err
		}
		fields[k] = v
	}

	return Node{
		Fields: fields,
		Meta: Metadata{
			NodeID:       mj.NodeID,
			State:        mj.State,
			MachineState: mj.MachineState,
			MachineID:    mj.MachineID,
		},
	}, nil
}

// NodeFromAny decodes a node payload that has already been unmarshaled as
// part of a larger structure (e.g. a decoded wire frame).
func NodeFromAny(raw any) (Node, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return Node{}, &ErrMalformed{Reason: "node payload is not an object"}
	}
	return nodeFromMap(obj)
}
