// Package filter narrows a clinic's contact population to the recipients of
// an automation. Stored filter clauses are parsed into a closed set of
// predicate kinds with exhaustive dispatch; an unknown clause kind is a parse
// error, never a silent pass. All clauses combine with logical AND.
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/itgabriell/audicare-engine/internal/domain"
)

// Kind is the category of a filter clause.
type Kind string

const (
	// KindField compares a plain contact field (name, phone, email).
	KindField Kind = "field"
	// KindHasPhone keeps recipients with (or without) a usable phone.
	KindHasPhone Kind = "has_phone"
	// KindPatientStatus compares the linked patient's status.
	KindPatientStatus Kind = "patient_status"
	// KindHasAppointment tests appointment existence for the linked patient.
	KindHasAppointment Kind = "has_appointment"
	// KindDaysSinceLastAppointment compares days since the most recent
	// appointment. Recipients with no appointments never match.
	KindDaysSinceLastAppointment Kind = "days_since_last_appointment"
	// KindBirthdayToday matches contacts whose birth day+month is today.
	KindBirthdayToday Kind = "birthday_today"
	// KindBirthdayMonth matches contacts born in the current month.
	KindBirthdayMonth Kind = "birthday_month"
	// KindAgeRange compares the contact's age in whole years.
	KindAgeRange Kind = "age_range"
)

// contactFields are the names accepted for generic field clauses.
var contactFields = map[string]bool{
	"name":  true,
	"phone": true,
	"email": true,
}

// requiresPatientData reports whether a clause kind needs the recipient
// loaded together with patient and appointment rows.
func (k Kind) requiresPatientData() bool {
	switch k {
	case KindPatientStatus, KindHasAppointment, KindDaysSinceLastAppointment:
		return true
	}
	return false
}

// Clause is a parsed, evaluable filter clause.
type Clause struct {
	Kind     Kind
	Field    string // set for KindField
	Operator domain.FilterOperator
	Value    string

	// Pre-parsed numeric value for greater/less comparisons.
	numeric    float64
	hasNumeric bool
}

// Parse validates one stored clause and returns its evaluable form.
func Parse(fc domain.FilterClause) (Clause, error) {
	c := Clause{Operator: fc.Operator, Value: fc.Value}

	switch t := fc.Type; {
	case t == string(KindHasPhone):
		c.Kind = KindHasPhone
		if fc.Operator != domain.OpEquals {
			return c, fmt.Errorf("has_phone supports only equals, got %q", fc.Operator)
		}
	case t == string(KindPatientStatus):
		c.Kind = KindPatientStatus
		if fc.Operator != domain.OpEquals && fc.Operator != domain.OpNotEquals {
			return c, fmt.Errorf("patient_status supports equals/not_equals, got %q", fc.Operator)
		}
	case t == string(KindHasAppointment):
		c.Kind = KindHasAppointment
	case t == string(KindDaysSinceLastAppointment):
		c.Kind = KindDaysSinceLastAppointment
		if err := c.parseNumeric(); err != nil {
			return c, err
		}
		if fc.Operator != domain.OpGreater && fc.Operator != domain.OpLess {
			return c, fmt.Errorf("days_since_last_appointment supports greater/less, got %q", fc.Operator)
		}
	case t == string(KindBirthdayToday):
		c.Kind = KindBirthdayToday
	case t == string(KindBirthdayMonth):
		c.Kind = KindBirthdayMonth
	case t == string(KindAgeRange):
		c.Kind = KindAgeRange
		if err := c.parseNumeric(); err != nil {
			return c, err
		}
		if fc.Operator != domain.OpGreater && fc.Operator != domain.OpLess {
			return c, fmt.Errorf("age_range supports greater/less, got %q", fc.Operator)
		}
	case contactFields[t]:
		c.Kind = KindField
		c.Field = t
	default:
		return c, fmt.Errorf("unknown filter clause type %q", fc.Type)
	}

	switch fc.Operator {
	case domain.OpEquals, domain.OpNotEquals, domain.OpGreater, domain.OpLess, domain.OpContains:
	default:
		return c, fmt.Errorf("unknown operator %q", fc.Operator)
	}

	return c, nil
}

// ParseAll parses every stored clause, failing on the first invalid one.
func ParseAll(fcs []domain.FilterClause) ([]Clause, error) {
	out := make([]Clause, 0, len(fcs))
	for i, fc := range fcs {
		c, err := Parse(fc)
		if err != nil {
			return nil, fmt.Errorf("clause %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// NeedsPatientData reports whether any clause requires the patient-joined
// recipient projection.
func NeedsPatientData(clauses []Clause) bool {
	for _, c := range clauses {
		if c.Kind.requiresPatientData() {
			return true
		}
	}
	return false
}

func (c *Clause) parseNumeric() error {
	v, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
	if err != nil {
		return fmt.Errorf("clause type %q requires a numeric value, got %q", c.Kind, c.Value)
	}
	c.numeric = v
	c.hasNumeric = true
	return nil
}

func (c Clause) boolValue() bool {
	return strings.EqualFold(strings.TrimSpace(c.Value), "true")
}
