// Package discount decodes the recharge discount result published by the
// account controller in a BillingInfoQuery status.
package discount

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/xeipuuv/gojsonschema"
)

// ErrMalformedPayload wraps every decode failure.
var ErrMalformedPayload = errors.New("malformed discount payload")

// payloadSchema describes status.result. specialDiscount keys are numeric
// thresholds encoded as strings; their syntax is checked by toPairs.
const payloadSchema = `{
  "type": "object",
  "required": ["discountRates", "discountSteps"],
  "properties": {
    "discountRates": {"type": "array", "items": {"type": "number"}},
    "discountSteps": {"type": "array", "items": {"type": "number"}},
    "specialDiscount": {
      "type": ["object", "null"],
      "additionalProperties": {"type": "number"}
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(payloadSchema)

// Pair is one special discount: recharging at least Threshold yields Rate.
type Pair struct {
	Threshold float64
	Rate      float64
}

// MarshalJSON encodes the pair as a two-element array.
func (p Pair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Threshold, p.Rate})
}

// UnmarshalJSON accepts the two-element array form.
func (p *Pair) UnmarshalJSON(data []byte) error {
	var arr [2]float64
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	p.Threshold, p.Rate = arr[0], arr[1]
	return nil
}

// Info is the caller-facing discount table.
type Info struct {
	Rates           []float64 `json:"ratios"`
	Steps           []float64 `json:"steps"`
	SpecialDiscount []Pair    `json:"specialDiscount"`
}

type payload struct {
	DiscountRates   []float64                                `json:"discountRates"`
	DiscountSteps   []float64                                `json:"discountSteps"`
	SpecialDiscount *orderedmap.OrderedMap[string, float64] `json:"specialDiscount"`
}

// Decode parses a status.result payload. Special discounts keep the order in
// which they appear in the payload; they are not sorted.
func Decode(text string) (*Info, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}

	res, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewStringLoader(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrMalformedPayload, strings.Join(msgs, "; "))
	}

	var p payload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	pairs, err := toPairs(p.SpecialDiscount)
	if err != nil {
		return nil, err
	}

	return &Info{
		Rates:           nonNil(p.DiscountRates),
		Steps:           nonNil(p.DiscountSteps),
		SpecialDiscount: pairs,
	}, nil
}

func toPairs(m *orderedmap.OrderedMap[string, float64]) ([]Pair, error) {
	if m == nil {
		return []Pair{}, nil
	}
	pairs := make([]Pair, 0, m.Len())
	for el := m.Oldest(); el != nil; el = el.Next() {
		threshold, err := strconv.ParseFloat(strings.TrimSpace(el.Key), 64)
		if err != nil || math.IsNaN(threshold) || math.IsInf(threshold, 0) {
			return nil, fmt.Errorf("%w: special discount key %q is not a number", ErrMalformedPayload, el.Key)
		}
		pairs = append(pairs, Pair{Threshold: threshold, Rate: el.Value})
	}
	return pairs, nil
}

func nonNil(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}
