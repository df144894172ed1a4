// internal/models/billing.go
package models

import "k8s.io/apimachinery/pkg/runtime/schema"

// BillingInfoQueryKind is the custom resource the account controller resolves.
var BillingInfoQueryKind = schema.GroupVersionKind{
	Group:   "account.sealos.io",
	Version: "v1",
	Kind:    "BillingInfoQuery",
}
