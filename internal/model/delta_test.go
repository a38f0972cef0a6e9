package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeScalarLeafReplacesOutright(t *testing.T) {
	dst, err := DeltaFromJSON([]byte(`{"a":1,"b":2}`))
	require.NoError(t, err)
	delta, err := DeltaFromJSON([]byte(`{"b":99}`))
	require.NoError(t, err)

	merged := Merge(dst, delta)
	out := merged.ToAny().(map[string]interface{})

	assert.EqualValues(t, 1, out["a"], "fields absent from the delta are carried over unchanged")
	assert.EqualValues(t, 99, out["b"], "fields present in the delta overwrite the old scalar")
}

func TestMergeNestedObjectRecurses(t *testing.T) {
	dst, err := DeltaFromJSON([]byte(`{"stats":{"wins":3,"losses":1}}`))
	require.NoError(t, err)
	delta, err := DeltaFromJSON([]byte(`{"stats":{"wins":4}}`))
	require.NoError(t, err)

	merged := Merge(dst, delta)
	raw, err := json.Marshal(merged.ToAny())
	require.NoError(t, err)

	var out struct {
		Stats struct {
			Wins   float64 `json:"wins"`
			Losses float64 `json:"losses"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, float64(4), out.Stats.Wins)
	assert.Equal(t, float64(1), out.Stats.Losses, "nested sibling field untouched by the delta must survive the merge")
}

func TestMergeArrayReplacesWhole(t *testing.T) {
	dst, err := DeltaFromJSON([]byte(`{"items":[1,2,3]}`))
	require.NoError(t, err)
	delta, err := DeltaFromJSON([]byte(`{"items":[9]}`))
	require.NoError(t, err)

	merged := Merge(dst, delta)
	out := merged.ToAny().(map[string]interface{})
	items := out["items"].([]interface{})
	require.Len(t, items, 1)
	assert.EqualValues(t, 9, items[0])
}

func TestMergeServerProfileJSONEnforcesXPlatformIdInvariant(t *testing.T) {
	base := ServerProfile{
		XPlatformId: XPlatformId{Platform: PlatformOVR, AccountID: 1},
		DisplayName: "Alice",
		Stats:       map[string]interface{}{"wins": 3.0},
	}

	merged, err := MergeServerProfileJSON(base, []byte(`{"stats":{"wins":4}}`))
	require.NoError(t, err)

	assert.Equal(t, base.XPlatformId, merged.XPlatformId)
	assert.Equal(t, "Alice", merged.DisplayName)
	assert.EqualValues(t, 4, merged.Stats["wins"])
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	dst, err := DeltaFromJSON([]byte(`{"a":{"b":1}}`))
	require.NoError(t, err)
	delta, err := DeltaFromJSON([]byte(`{"a":{"b":2}}`))
	require.NoError(t, err)

	_ = Merge(dst, delta)

	// dst's own tree must be unchanged after Merge returns.
	out := dst.ToAny().(map[string]interface{})
	inner := out["a"].(map[string]interface{})
	assert.EqualValues(t, 1, inner["b"])
}
