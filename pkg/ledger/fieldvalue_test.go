package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldValueJSON(t *testing.T) {
	t.Run("marshals to natural JSON", func(t *testing.T) {
		data := NFPAData{
			"fireAlarmType":   String("addressable"),
			"numberOfDevices": Int(45),
			"coverageArea":    Float(1250.5),
			"testResults":     Bool(true),
			"specialHazards":  List("flammable storage"),
		}

		raw, err := json.Marshal(data)
		require.NoError(t, err)

		var plain map[string]any
		require.NoError(t, json.Unmarshal(raw, &plain))
		assert.Equal(t, "addressable", plain["fireAlarmType"])
		assert.Equal(t, float64(45), plain["numberOfDevices"])
		assert.Equal(t, 1250.5, plain["coverageArea"])
		assert.Equal(t, true, plain["testResults"])
		assert.Equal(t, []any{"flammable storage"}, plain["specialHazards"])
	})

	t.Run("round-trips through JSON", func(t *testing.T) {
		original := NFPAData{
			"fireAlarmType":   String("conventional"),
			"numberOfDevices": Int(12),
			"coverageArea":    Float(99.25),
			"testResults":     Bool(false),
			"specialHazards":  List("a", "b"),
		}

		raw, err := json.Marshal(original)
		require.NoError(t, err)

		var decoded NFPAData
		require.NoError(t, json.Unmarshal(raw, &decoded))

		for field, want := range original {
			assert.True(t, decoded[field].Equal(want), "field %s: got %+v want %+v", field, decoded[field], want)
		}
	})

	t.Run("whole numbers decode as ints", func(t *testing.T) {
		var v FieldValue
		require.NoError(t, json.Unmarshal([]byte("45"), &v))
		assert.Equal(t, KindInt, v.Kind)
		assert.Equal(t, int64(45), v.Int)
	})

	t.Run("fractional numbers decode as floats", func(t *testing.T) {
		var v FieldValue
		require.NoError(t, json.Unmarshal([]byte("45.5"), &v))
		assert.Equal(t, KindFloat, v.Kind)
		assert.Equal(t, 45.5, v.Float)
	})

	t.Run("whole floats round-trip equal", func(t *testing.T) {
		v := Float(12000)
		assert.Equal(t, KindInt, v.Kind)

		raw, err := json.Marshal(v)
		require.NoError(t, err)

		var decoded FieldValue
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.True(t, decoded.Equal(v))
	})

	t.Run("null decodes as absent", func(t *testing.T) {
		var v FieldValue
		require.NoError(t, json.Unmarshal([]byte("null"), &v))
		assert.True(t, v.IsAbsent())
	})

	t.Run("rejects non-string list items", func(t *testing.T) {
		var v FieldValue
		err := json.Unmarshal([]byte("[1, 2]"), &v)
		assert.Error(t, err)
	})
}

func TestFieldValueEqual(t *testing.T) {
	assert.True(t, String("x").Equal(String("x")))
	assert.False(t, String("x").Equal(String("y")))
	assert.True(t, Int(1).Equal(Float(1)), "whole floats canonicalize to ints")
	assert.False(t, Int(1).Equal(Float(1.5)))
	assert.True(t, List("a", "b").Equal(List("a", "b")))
	assert.False(t, List("a").Equal(List("a", "b")))
	assert.True(t, Absent().Equal(FieldValue{}))
}

func TestSpecialHazards(t *testing.T) {
	t.Run("returns declared hazards", func(t *testing.T) {
		data := NFPAData{FieldSpecialHazards: List("flammable storage")}
		assert.Equal(t, []string{"flammable storage"}, data.SpecialHazards())
	})

	t.Run("returns nil when absent or wrong kind", func(t *testing.T) {
		assert.Nil(t, NFPAData{}.SpecialHazards())
		assert.Nil(t, NFPAData{FieldSpecialHazards: String("oops")}.SpecialHazards())
	})
}
