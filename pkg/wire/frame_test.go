package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildReqShape(t *testing.T) {
	b, err := BuildReq("sub1", Request{
		Kinds:  []int{1, 7},
		Limit:  10,
		Tags:   map[string][]string{"p": {"abc"}},
		Relays: []string{"wss://relay.example.com"},
	})
	require.NoError(t, err)

	var arr []json.RawMessage
	require.NoError(t, json.Unmarshal(b, &arr))
	require.Len(t, arr, 3)

	var label string
	require.NoError(t, json.Unmarshal(arr[0], &label))
	assert.Equal(t, "REQ", label)

	var subID string
	require.NoError(t, json.Unmarshal(arr[1], &subID))
	assert.Equal(t, "sub1", subID)

	var filter map[string]any
	require.NoError(t, json.Unmarshal(arr[2], &filter))
	assert.Contains(t, filter, "kinds")
	assert.Contains(t, filter, "limit")
	assert.Contains(t, filter, "#p")
	assert.NotContains(t, filter, "ids")
}

func TestBuildCloseShape(t *testing.T) {
	b, err := BuildClose("sub1")
	require.NoError(t, err)
	var arr []any
	require.NoError(t, json.Unmarshal(b, &arr))
	assert.Equal(t, []any{"CLOSE", "sub1"}, arr)
}

func TestBuildReqOmitsZeroFields(t *testing.T) {
	b, err := BuildReq("sub2", Request{})
	require.NoError(t, err)
	var arr []json.RawMessage
	require.NoError(t, json.Unmarshal(b, &arr))
	var filter map[string]any
	require.NoError(t, json.Unmarshal(arr[2], &filter))
	assert.Empty(t, filter)
}
