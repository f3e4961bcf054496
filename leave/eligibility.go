/*
eligibility.go - Leave-type eligibility rules

PURPOSE:
  Leave types can restrict who may use them (e.g., maternity leave by
  gender). Restrictions are modeled as a small set of named predicates
  over the directory's employee record, so new attribute-based rules slot
  in without touching the service or the schema.
*/
package leave

import "strings"

// EligibilityRule is a named predicate over an employee record.
type EligibilityRule interface {
	Name() string
	Eligible(emp Employee) bool
}

// activeRule excludes inactive employees from every leave type.
type activeRule struct{}

func (activeRule) Name() string               { return "active" }
func (activeRule) Eligible(emp Employee) bool { return emp.Active }

// genderRule restricts a leave type to a single gender attribute.
type genderRule struct{ gender string }

func (r genderRule) Name() string { return "gender:" + r.gender }

func (r genderRule) Eligible(emp Employee) bool {
	return strings.EqualFold(emp.Gender, r.gender)
}

// RulesFor returns the rules a leave type imposes.
func RulesFor(lt LeaveType) []EligibilityRule {
	rules := []EligibilityRule{activeRule{}}
	if lt.GenderRestriction != "" {
		rules = append(rules, genderRule{gender: lt.GenderRestriction})
	}
	return rules
}

// CheckEligibility evaluates every rule, returning an EligibilityError
// naming the first rule that excludes the employee.
func CheckEligibility(lt LeaveType, emp Employee) error {
	for _, rule := range RulesFor(lt) {
		if !rule.Eligible(emp) {
			return &EligibilityError{
				EmployeeID:  emp.ID,
				LeaveTypeID: lt.ID,
				Rule:        rule.Name(),
			}
		}
	}
	return nil
}
