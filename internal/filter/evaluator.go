package filter

import (
	"strings"
	"time"

	"github.com/itgabriell/audicare-engine/internal/domain"
)

// Evaluate returns the recipients matching all clauses. An empty result is a
// valid, non-exceptional outcome; callers must not treat it as an error.
func Evaluate(recipients []domain.Recipient, clauses []Clause, now time.Time) []domain.Recipient {
	if len(clauses) == 0 {
		return recipients
	}
	out := make([]domain.Recipient, 0, len(recipients))
	for _, r := range recipients {
		if MatchesAll(r, clauses, now) {
			out = append(out, r)
		}
	}
	return out
}

// MatchesAll reports whether one recipient satisfies every clause.
func MatchesAll(r domain.Recipient, clauses []Clause, now time.Time) bool {
	for _, c := range clauses {
		if !c.Matches(r, now) {
			return false
		}
	}
	return true
}

// Matches evaluates one clause against one recipient.
func (c Clause) Matches(r domain.Recipient, now time.Time) bool {
	switch c.Kind {
	case KindField:
		return matchField(fieldValue(r.Contact, c.Field), c.Operator, c.Value)

	case KindHasPhone:
		return r.Contact.HasPhone() == c.boolValue()

	case KindPatientStatus:
		if r.Patient == nil {
			return false
		}
		if c.Operator == domain.OpNotEquals {
			return !strings.EqualFold(r.Patient.Status, c.Value)
		}
		return strings.EqualFold(r.Patient.Status, c.Value)

	case KindHasAppointment:
		return (len(r.Appointments) > 0) == c.boolValue()

	case KindDaysSinceLastAppointment:
		last := r.LastAppointment()
		if last == nil {
			return false
		}
		days := now.Sub(last.ScheduledAt).Hours() / 24
		if c.Operator == domain.OpGreater {
			return days > c.numeric
		}
		return days < c.numeric

	case KindBirthdayToday:
		if r.Contact.BirthDate == nil {
			return false
		}
		b := *r.Contact.BirthDate
		return b.Month() == now.Month() && b.Day() == now.Day()

	case KindBirthdayMonth:
		return r.Contact.BirthDate != nil && r.Contact.BirthDate.Month() == now.Month()

	case KindAgeRange:
		if r.Contact.BirthDate == nil {
			return false
		}
		age := ageInYears(*r.Contact.BirthDate, now)
		if c.Operator == domain.OpGreater {
			return float64(age) > c.numeric
		}
		return float64(age) < c.numeric
	}
	// Parse guarantees the kind is known; an unreachable kind matches nothing.
	return false
}

func fieldValue(c domain.Contact, field string) string {
	switch field {
	case "name":
		return c.Name
	case "phone":
		return c.Phone
	case "email":
		return c.Email
	}
	return ""
}

func matchField(have string, op domain.FilterOperator, want string) bool {
	switch op {
	case domain.OpEquals:
		return have == want
	case domain.OpNotEquals:
		return have != want
	case domain.OpContains:
		return strings.Contains(strings.ToLower(have), strings.ToLower(want))
	case domain.OpGreater:
		return have > want
	case domain.OpLess:
		return have < want
	}
	return false
}

func ageInYears(birth, now time.Time) int {
	years := now.Year() - birth.Year()
	// Birthday not yet reached this year
	if now.Month() < birth.Month() ||
		(now.Month() == birth.Month() && now.Day() < birth.Day()) {
		years--
	}
	return years
}
