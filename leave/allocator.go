/*
allocator.go - Paid/unpaid day allocation

PURPOSE:
  Given the requested calendar days and the balance available at
  submission time, decide which days are paid and which are unpaid.

ALGORITHM:
  Walk the day list in chronological order with a running remaining
  balance. A day whose weight fits in the remaining balance is PAID and
  the weight is subtracted. The first day that does not fit turns the
  allocation unpaid for itself and every later day, even when a lighter
  later day would still fit, so paid days are always a contiguous prefix
  of the requested range.

PROPERTIES:
  - Total: never fails, any input produces an Allocation
  - paidDays + unpaidDays == sum of day weights
  - Deterministic for a given day order and balance

SEE ALSO:
  - service.go: runs the allocator during ApplyLeave
  - types.go: RequestedDay, PayStatus
*/
package leave

import (
	"sort"

	"github.com/shopspring/decimal"
)

// DayAllocation is the allocator's verdict for a single requested day.
type DayAllocation struct {
	Day       RequestedDay
	Weight    decimal.Decimal
	PayStatus PayStatus
}

// Allocation is the paid/unpaid breakdown of one submission.
type Allocation struct {
	RequestedDays     decimal.Decimal
	PaidDays          decimal.Decimal
	UnpaidDays        decimal.Decimal
	PerDay            []DayAllocation
	IsPartiallyUnpaid bool
}

// Allocate splits the requested days into paid and unpaid against the
// available balance. Pure and total: an empty day list yields an all-zero
// Allocation, a negative balance behaves like zero.
func Allocate(days []RequestedDay, available decimal.Decimal) Allocation {
	ordered := make([]RequestedDay, len(days))
	copy(ordered, days)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	remaining := available
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	alloc := Allocation{
		RequestedDays: decimal.Zero,
		PaidDays:      decimal.Zero,
		UnpaidDays:    decimal.Zero,
		PerDay:        make([]DayAllocation, 0, len(ordered)),
	}

	exhausted := false
	for _, d := range ordered {
		weight := d.Weight()
		alloc.RequestedDays = alloc.RequestedDays.Add(weight)

		status := PayStatusUnpaid
		if !exhausted && remaining.GreaterThanOrEqual(weight) {
			status = PayStatusPaid
			remaining = remaining.Sub(weight)
			alloc.PaidDays = alloc.PaidDays.Add(weight)
		} else {
			exhausted = true
		}

		alloc.PerDay = append(alloc.PerDay, DayAllocation{
			Day:       d,
			Weight:    weight,
			PayStatus: status,
		})
	}

	alloc.UnpaidDays = alloc.RequestedDays.Sub(alloc.PaidDays)
	alloc.IsPartiallyUnpaid = alloc.UnpaidDays.IsPositive()
	return alloc
}
