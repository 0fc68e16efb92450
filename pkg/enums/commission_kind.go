package enums

import "fmt"

// CommissionKind distinguishes the ledger rows the calculator produces.
type CommissionKind string

const (
	CommissionKindPlatformFee CommissionKind = "platform_fee"
	CommissionKindDirect      CommissionKind = "direct"
	CommissionKindSecondTier  CommissionKind = "second_tier"
)

var validCommissionKinds = []CommissionKind{
	CommissionKindPlatformFee,
	CommissionKindDirect,
	CommissionKindSecondTier,
}

// String implements fmt.Stringer.
func (k CommissionKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known CommissionKind.
func (k CommissionKind) IsValid() bool {
	for _, candidate := range validCommissionKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseCommissionKind converts raw input into a CommissionKind.
func ParseCommissionKind(value string) (CommissionKind, error) {
	for _, candidate := range validCommissionKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid commission kind %q", value)
}
