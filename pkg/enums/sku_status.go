package enums

import "fmt"

// SkuStatus gates whether a SKU is purchasable.
type SkuStatus string

const (
	SkuStatusActive   SkuStatus = "active"
	SkuStatusInactive SkuStatus = "inactive"
)

// IsValid reports whether the value is a known SkuStatus.
func (s SkuStatus) IsValid() bool {
	return s == SkuStatusActive || s == SkuStatusInactive
}

// ParseSkuStatus converts raw input into a SkuStatus.
func ParseSkuStatus(value string) (SkuStatus, error) {
	switch SkuStatus(value) {
	case SkuStatusActive, SkuStatusInactive:
		return SkuStatus(value), nil
	}
	return "", fmt.Errorf("invalid sku status %q", value)
}
