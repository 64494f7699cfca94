package domain

import (
	"fmt"
	"strings"
	"time"
)

// Result is the terminal result of one verification transaction.
type Result string

const (
	ResultSuccess Result = "Success"
	ResultFailure Result = "Error"
)

func (r Result) String() string { return string(r) }

func (r Result) IsValid() bool {
	switch r {
	case ResultSuccess, ResultFailure:
		return true
	}
	return false
}

// FailureReason is the classified cause of a failed transaction.
type FailureReason string

const (
	ReasonNotFound       FailureReason = "not found"
	ReasonUpdateRequired FailureReason = "requires manual update"
	ReasonQuotaExceeded  FailureReason = "exceeds reasonable limit"
	ReasonStockExhausted FailureReason = "stock exhausted"
	ReasonSubmitMissing  FailureReason = "submit control missing"
	ReasonAmbiguousMatch FailureReason = "ambiguous match unresolved"
)

func (r FailureReason) String() string { return string(r) }

const householdCategoryMarker = "rumah tangga"

// CustomerInfo is what the portal reveals about the identifier owner.
type CustomerInfo struct {
	Name     string
	Category string
}

// IsHousehold reports whether the customer belongs to the household category,
// which takes the short checkout path.
func (c CustomerInfo) IsHousehold() bool {
	return strings.Contains(strings.ToLower(c.Category), householdCategoryMarker)
}

// OutcomeRecord is the per-identifier result of a batch run.
type OutcomeRecord struct {
	Identifier       Identifier
	CustomerName     *string
	CustomerCategory *string
	Result           Result
	FailureReason    *FailureReason
	Timestamp        time.Time
}

func (o OutcomeRecord) IsSuccess() bool { return o.Result == ResultSuccess }

// Validate checks the record invariants: success carries no failure reason,
// failure always carries one.
func (o OutcomeRecord) Validate() error {
	if !o.Identifier.IsValid() {
		return fmt.Errorf("%w: invalid identifier %q", ErrValidation, o.Identifier)
	}
	if !o.Result.IsValid() {
		return fmt.Errorf("%w: invalid result %q", ErrValidation, o.Result)
	}
	if o.Result == ResultSuccess && o.FailureReason != nil {
		return fmt.Errorf("%w: success record has failure reason %q", ErrValidation, *o.FailureReason)
	}
	if o.Result == ResultFailure && o.FailureReason == nil {
		return fmt.Errorf("%w: failure record without reason", ErrValidation)
	}
	return nil
}

func NewSuccess(id Identifier, info CustomerInfo, at time.Time) OutcomeRecord {
	return OutcomeRecord{
		Identifier:       id,
		CustomerName:     optionalString(info.Name),
		CustomerCategory: optionalString(info.Category),
		Result:           ResultSuccess,
		Timestamp:        at,
	}
}

// NewFailure builds a failure record. info may be nil when the portal never
// revealed the customer.
func NewFailure(id Identifier, info *CustomerInfo, reason FailureReason, at time.Time) OutcomeRecord {
	record := OutcomeRecord{
		Identifier:    id,
		Result:        ResultFailure,
		FailureReason: &reason,
		Timestamp:     at,
	}
	if info != nil {
		record.CustomerName = optionalString(info.Name)
		record.CustomerCategory = optionalString(info.Category)
	}
	return record
}

func optionalString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
