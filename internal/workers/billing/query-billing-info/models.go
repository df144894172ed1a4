// internal/workers/billing/query-billing-info/models.go
package querybillinginfo

import (
	"billing-workers/internal/billing/discount"
)

type Input struct {
	Namespace    string `json:"namespace"`
	QueryType    string `json:"queryType,omitempty"`
	ForceRefresh bool   `json:"forceRefresh,omitempty"`
}

type Output struct {
	Ratios          []float64       `json:"ratios"`
	Steps           []float64       `json:"steps"`
	SpecialDiscount []discount.Pair `json:"specialDiscount"`
	QueryName       string          `json:"queryName"`
	Attempts        int             `json:"attempts"`
	Cached          bool            `json:"cached"`
}

// cachedDiscount is the Redis representation of a resolved discount table.
type cachedDiscount struct {
	QueryName string         `json:"queryName"`
	Info      *discount.Info `json:"info"`
}

const inputSchema = `{
  "type": "object",
  "required": ["namespace"],
  "properties": {
    "namespace": {
      "type": "string",
      "minLength": 1,
      "maxLength": 63,
      "pattern": "^[a-z0-9]([-a-z0-9]*[a-z0-9])?$"
    },
    "queryType": {"type": "string", "enum": ["Recharge"]},
    "forceRefresh": {"type": "boolean"}
  }
}`

// Audit outcomes, in addition to the resolver failure kinds.
const (
	OutcomeSuccess = "success"
)
