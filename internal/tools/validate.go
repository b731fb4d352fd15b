// ABOUTME: Input validation shared by the tool handlers
// ABOUTME: Closed enums, UUID ids, and pagination bounds

package tools

import (
	"fmt"

	"github.com/google/uuid"
)

var (
	validStatus = map[string]bool{
		"Not Started": true, "Pre-Capture": true, "Capture": true, "Proposal": true,
		"Submitted": true, "Won": true, "Lost": true, "No Bid": true,
	}
	validPriority = map[string]bool{
		"1 - Top": true, "2 - Nice to Have": true, "3 - Maybe": true, "4 - No Bid": true,
	}
	validType = map[string]bool{
		"RFQ": true, "RFI": true, "RTEP": true, "Other": true,
	}
	validPrimeSub = map[string]bool{
		"Prime": true, "Sub": true,
	}
	validNewRecompete = map[string]bool{
		"New": true, "Recompete": true, "Vehicle": true,
	}
)

func checkEnum(field, value string, valid map[string]bool) error {
	if !valid[value] {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}

// checkEnumPtr validates an optional enum field.
func checkEnumPtr(field string, value *string, valid map[string]bool) error {
	if value == nil {
		return nil
	}
	return checkEnum(field, *value, valid)
}

func checkUUID(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if _, err := uuid.Parse(value); err != nil {
		return fmt.Errorf("%s must be a valid UUID", field)
	}
	return nil
}

func checkProbability(p *int) error {
	if p != nil && (*p < 0 || *p > 100) {
		return fmt.Errorf("probability must be between 0 and 100")
	}
	return nil
}

// page resolves limit/offset against their defaults and bounds.
func page(limit, offset *int) (int, int, error) {
	l, o := 50, 0
	if limit != nil {
		l = *limit
	}
	if offset != nil {
		o = *offset
	}
	if l < 1 || l > 100 {
		return 0, 0, fmt.Errorf("limit must be between 1 and 100")
	}
	if o < 0 {
		return 0, 0, fmt.Errorf("offset must be non-negative")
	}
	return l, o, nil
}
