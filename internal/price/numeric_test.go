package price

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_AllRepresentationsAgree(t *testing.T) {
	values := []Numeric{
		FromFloat(100),
		FromString("100"),
		FromString(" 100.00 "),
		FromDecimal(decimal.NewFromInt(100)),
	}
	for _, v := range values {
		assert.Equal(t, 100.0, Normalize(v), "kind=%s", v.Kind())
	}
}

func TestNormalize_InvalidShapesAreZero(t *testing.T) {
	cases := map[string]Numeric{
		"zero value":   {},
		"garbage text": FromString("ten dollars"),
		"empty string": FromString(""),
		"nan":          FromFloat(math.NaN()),
		"inf":          FromFloat(math.Inf(1)),
	}
	for name, v := range cases {
		assert.Equal(t, 0.0, Normalize(v), name)
	}
}

func TestUnmarshalJSON_DetectsRepresentation(t *testing.T) {
	cases := []struct {
		in   string
		kind Kind
		want float64
	}{
		{`19.99`, KindNumber, 19.99},
		{`"19.99"`, KindString, 19.99},
		{`{"$numberDecimal":"19.99"}`, KindDecimal, 19.99},
		{`{"value":19.99}`, KindDecimal, 19.99},
		{`null`, KindUnknown, 0},
		{`true`, KindUnknown, 0},
		{`[1,2]`, KindUnknown, 0},
		{`{"amount":"3"}`, KindUnknown, 0},
		{`{"value":"abc"}`, KindUnknown, 0},
	}
	for _, tc := range cases {
		var n Numeric
		require.NoError(t, json.Unmarshal([]byte(tc.in), &n), tc.in)
		assert.Equal(t, tc.kind, n.Kind(), tc.in)
		assert.InDelta(t, tc.want, n.Float64(), 1e-9, tc.in)
	}
}

func TestMarshalJSON_PreservesKind(t *testing.T) {
	for _, original := range []Numeric{FromFloat(5), FromString("5.50"), FromDecimal(decimal.RequireFromString("7.25"))} {
		data, err := json.Marshal(original)
		require.NoError(t, err)

		var decoded Numeric
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, original.Kind(), decoded.Kind(), string(data))
		assert.Equal(t, original.Float64(), decoded.Float64(), string(data))
	}
}
