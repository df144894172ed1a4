// internal/models/query_types.go
package models

// BillingQueryType selects what the account controller computes for a
// BillingInfoQuery.
type BillingQueryType string

const (
	BillingQueryTypeRecharge BillingQueryType = "Recharge"
)

var ValidBillingQueryTypes = map[BillingQueryType]bool{
	BillingQueryTypeRecharge: true,
}
