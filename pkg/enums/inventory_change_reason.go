package enums

import "fmt"

// InventoryChangeReason classifies each inventory ledger mutation.
type InventoryChangeReason string

const (
	InventoryReasonReserve  InventoryChangeReason = "reserve"
	InventoryReasonFinalize InventoryChangeReason = "finalize"
	InventoryReasonRelease  InventoryChangeReason = "release"
	InventoryReasonRestock  InventoryChangeReason = "restock"
	InventoryReasonManual   InventoryChangeReason = "manual_adjustment"
)

var validInventoryChangeReasons = []InventoryChangeReason{
	InventoryReasonReserve,
	InventoryReasonFinalize,
	InventoryReasonRelease,
	InventoryReasonRestock,
	InventoryReasonManual,
}

// String implements fmt.Stringer.
func (r InventoryChangeReason) String() string {
	return string(r)
}

// IsValid reports whether the value is a known InventoryChangeReason.
func (r InventoryChangeReason) IsValid() bool {
	for _, candidate := range validInventoryChangeReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseInventoryChangeReason converts raw input into an InventoryChangeReason.
func ParseInventoryChangeReason(value string) (InventoryChangeReason, error) {
	for _, candidate := range validInventoryChangeReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid inventory change reason %q", value)
}
