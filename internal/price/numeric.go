// Package price models catalog prices that may arrive as a plain number, a
// numeric string, or an arbitrary-precision decimal, and normalises them to a
// single numeric value before any arithmetic.
package price

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind identifies the representation a Numeric was built from.
type Kind int

const (
	KindUnknown Kind = iota
	KindNumber
	KindString
	KindDecimal
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindDecimal:
		return "decimal"
	default:
		return "unknown"
	}
}

// Numeric holds exactly one price representation. The zero value is KindUnknown
// and normalises to 0.
type Numeric struct {
	kind Kind
	num  float64
	str  string
	dec  decimal.Decimal
}

func FromFloat(v float64) Numeric {
	return Numeric{kind: KindNumber, num: v}
}

func FromString(v string) Numeric {
	return Numeric{kind: KindString, str: v}
}

func FromDecimal(v decimal.Decimal) Numeric {
	return Numeric{kind: KindDecimal, dec: v}
}

// Kind reports which representation n carries.
func (n Numeric) Kind() Kind {
	return n.kind
}

// Decimal returns the normalised value. Unparsable strings, non-finite numbers
// and unknown shapes all yield zero.
func (n Numeric) Decimal() decimal.Decimal {
	switch n.kind {
	case KindNumber:
		if math.IsNaN(n.num) || math.IsInf(n.num, 0) {
			return decimal.Zero
		}
		return decimal.NewFromFloat(n.num)
	case KindString:
		d, err := decimal.NewFromString(strings.TrimSpace(n.str))
		if err != nil {
			return decimal.Zero
		}
		return d
	case KindDecimal:
		return n.dec
	default:
		return decimal.Zero
	}
}

// Float64 is Normalize as a method.
func (n Numeric) Float64() float64 {
	return n.Decimal().InexactFloat64()
}

// Normalize converts any representation into a definite float64.
func Normalize(n Numeric) float64 {
	return n.Float64()
}

// MarshalJSON keeps the original representation so a persisted price reloads
// with the same kind: numbers as numbers, strings as strings and decimals as
// {"$numberDecimal": "..."}.
func (n Numeric) MarshalJSON() ([]byte, error) {
	switch n.kind {
	case KindNumber:
		if math.IsNaN(n.num) || math.IsInf(n.num, 0) {
			return []byte("0"), nil
		}
		return json.Marshal(n.num)
	case KindString:
		return json.Marshal(n.str)
	case KindDecimal:
		return json.Marshal(map[string]string{"$numberDecimal": n.dec.String()})
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON never fails: shapes it does not recognise decode to KindUnknown.
func (n *Numeric) UnmarshalJSON(data []byte) error {
	*n = Numeric{}
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			*n = FromString(s)
		}
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil
		}
		for _, key := range []string{"$numberDecimal", "value"} {
			inner, ok := obj[key]
			if !ok {
				continue
			}
			if d, ok := decimalFromRaw(inner); ok {
				*n = FromDecimal(d)
			}
			return nil
		}
	default:
		if f, err := strconv.ParseFloat(string(raw), 64); err == nil {
			*n = FromFloat(f)
		}
	}
	return nil
}

func decimalFromRaw(raw json.RawMessage) (decimal.Decimal, bool) {
	raw = bytes.TrimSpace(raw)
	text := string(raw)
	if len(raw) > 0 && raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return decimal.Zero, false
		}
	}
	d, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
