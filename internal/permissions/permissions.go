package permissions

import (
	"sort"

	"github.com/eventdesk/backend/internal/models"
)

// Key names one event-scoped capability.
type Key string

const (
	FinanceView             Key = "finance.view"
	FinanceRequestBudget    Key = "finance.request_budget"
	FinanceRequestAmendment Key = "finance.request_amendment"
	FinanceLogExpense       Key = "finance.log_expense"
	AttendanceManage        Key = "attendance.manage"
	CertificatesManage      Key = "certificates.manage"
	TeamManage              Key = "team.manage"
)

// AllKeys lists every known key.
var AllKeys = []Key{
	FinanceView, FinanceRequestBudget, FinanceRequestAmendment, FinanceLogExpense,
	AttendanceManage, CertificatesManage, TeamManage,
}

// Valid reports whether k is a known key.
func (k Key) Valid() bool {
	for _, known := range AllKeys {
		if k == known {
			return true
		}
	}
	return false
}

// Mode is the answer given when a permission cannot be looked up normally.
type Mode int

const (
	Permit Mode = iota
	Deny
)

func (m Mode) String() string {
	if m == Permit {
		return "permit"
	}
	return "deny"
}

const (
	// NoContextDefault applies when no event is selected.
	NoContextDefault = Permit
	// ErrorDefault applies when the lookup fails.
	ErrorDefault = Deny
)

var roleDefaults = map[models.TeamRole][]Key{
	models.TeamRoleLead: AllKeys,
	models.TeamRoleOrganizer: {
		FinanceView, FinanceRequestBudget, FinanceRequestAmendment, FinanceLogExpense,
		AttendanceManage, CertificatesManage,
	},
	models.TeamRoleVolunteer: {FinanceLogExpense, AttendanceManage},
}

// RoleDefaults returns the keys a team role holds before per-member grants.
func RoleDefaults(role models.TeamRole) []Key {
	return append([]Key(nil), roleDefaults[role]...)
}

// Set is a resolved permission set.
type Set map[Key]bool

// NewSet builds a set from keys, dropping unknown ones.
func NewSet(keys ...Key) Set {
	s := make(Set, len(keys))
	for _, k := range keys {
		if k.Valid() {
			s[k] = true
		}
	}
	return s
}

// Has reports whether k is in the set.
func (s Set) Has(k Key) bool { return s[k] }

// Keys returns the set as a sorted slice.
func (s Set) Keys() []Key {
	out := make([]Key, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ForMember resolves a team member's set: role defaults plus grants.
// A nil member has no permissions.
func ForMember(m *models.TeamMember) Set {
	if m == nil {
		return Set{}
	}
	s := NewSet(roleDefaults[m.Role]...)
	for _, g := range m.Grants {
		if k := Key(g); k.Valid() {
			s[k] = true
		}
	}
	return s
}
