package wire

import "hamsync/internal/ham"

// EncodeNodes turns a set of committed nodes, keyed by node_id, into the
// map[string]any shape a put frame's "put" field carries on the wire.
func EncodeNodes(nodes map[string]ham.Node) (map[string]any, error) {
	out := make(map[string]any, len(nodes))
	for nodeID, n := range nodes {
		encoded, err := ham.EncodeNode(n)
		if err != nil {
			return nil, err
		}
		out[nodeID] = encoded
	}
	return out, nil
}

// DecodeNodes is the inverse of EncodeNodes: it decodes a put frame's
// "put" field back into ham.Node values keyed by node_id.
func DecodeNodes(raw map[string]any) (map[string]ham.Node, error) {
	out := make(map[string]ham.Node, len(raw))
	for nodeID, v := range raw {
		n, err := ham.NodeFromAny(v)
		if err != nil {
			return nil, err
		}
		out[nodeID] = n
	}
	return out, nil
}
