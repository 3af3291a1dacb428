package wire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"hamsync/internal/ham"
)

func TestEncodeDecode_Hi_RoundTrip(t *testing.T) {
	f := NewHi("msg1", "1.0.0", "peerA")

	raw, err := Encode(f)
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)

	require.Equal(t, KindHi, decoded.Kind)
	require.Equal(t, "msg1", decoded.ID)
	require.Equal(t, &Hi{Version: "1.0.0", PeerID: "peerA"}, decoded.Hi)
}

func TestEncodeDecode_Bye_RoundTrip(t *testing.T) {
	f := NewBye("msg2", "peerA")

	raw, err := Encode(f)
	require.NoError(t, err)
	decoded, err := Decode(raw)
	require.NoError(t, err)

	require.Equal(t, KindBye, decoded.Kind)
	require.Equal(t, &Bye{PeerID: "peerA"}, decoded.Bye)
}

func TestEncodeDecode_Get_RoundTrip(t *testing.T) {
	query := BuildQuery("chat/r1", []string{"messages", "latest"})
	f := NewGet("msg3", query)

	raw, err := Encode(f)
	require.NoError(t, err)
	decoded, err := Decode(raw)
	require.NoError(t, err)

	require.Equal(t, KindGet, decoded.Kind)
	parsed, err := ParseQuery(decoded.Get)
	require.NoError(t, err)
	require.Equal(t, "chat/r1", parsed.NodeID)
	require.Equal(t, []string{"messages", "latest"}, parsed.Path)
}

func TestEncodeDecode_Put_RoundTrip(t *testing.T) {
	node := ham.Node{
		Fields: map[string]ham.Value{"name": ham.String("Alice")},
		Meta: ham.Metadata{
			NodeID:       "users/alice",
			State:        map[string]float64{"name": 1000},
			MachineState: 1,
			MachineID:    "AAAAAAAA",
		},
	}
	nodes, err := wireNodes(node)
	require.NoError(t, err)

	f := NewPut("msg4", "msg3", nodes)
	raw, err := Encode(f)
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, KindPut, decoded.Kind)
	require.Equal(t, "msg3", decoded.CorrelationID)

	back, err := DecodeNodes(decoded.Put)
	require.NoError(t, err)
	require.Equal(t, ham.String("Alice"), back["users/alice"].Fields["name"])
	require.Equal(t, "AAAAAAAA", back["users/alice"].Meta.MachineID)
}

func wireNodes(n ham.Node) (map[string]any, error) {
	return EncodeNodes(map[string]ham.Node{n.Meta.NodeID: n})
}

func TestEncodeDecode_Dam_RoundTrip(t *testing.T) {
	f := NewDam("A", "B", Dam{Message: "Node \"x\" not found", Node: "x"})

	raw, err := Encode(f)
	require.NoError(t, err)
	decoded, err := Decode(raw)
	require.NoError(t, err)

	require.Equal(t, KindDam, decoded.Kind)
	require.Equal(t, "A", decoded.ID)
	require.Equal(t, "B", decoded.CorrelationID)
	require.Equal(t, "Node \"x\" not found", decoded.Dam.Message)
	require.Equal(t, "x", decoded.Dam.Node)
}

func TestDecode_UnknownKind_PreservedAsUnknown(t *testing.T) {
	decoded, err := Decode([]byte(`{"@":"z","weird":true}`))
	require.NoError(t, err)
	require.Equal(t, KindUnknown, decoded.Kind)
	require.Equal(t, true, decoded.Extra["weird"])
}

func TestDecode_ExtraKeys_PreservedAndReemitted(t *testing.T) {
	raw := []byte(`{"hi":{"version":"1.0.0","peer_id":"p"},"@":"m","future_field":"x"}`)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, "x", decoded.Extra["future_field"])

	reencoded, err := Encode(decoded)
	require.NoError(t, err)

	roundTrip, err := Decode(reencoded)
	require.NoError(t, err)
	require.Equal(t, "x", roundTrip.Extra["future_field"])
}

func TestDecode_MalformedJSON_ReturnsErrMalformed(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	require.Error(t, err)
	require.IsType(t, &ErrMalformed{}, err)
}

func TestDecode_HiWithNonObjectPayload_ReturnsErrMalformed(t *testing.T) {
	_, err := Decode([]byte(`{"hi":"not-an-object"}`))
	require.Error(t, err)
	require.IsType(t, &ErrMalformed{}, err)
}

func TestEncode_UnknownKind_Errors(t *testing.T) {
	_, err := Encode(Frame{Kind: KindUnknown})
	require.Error(t, err)
}
