package domain

import (
	"strings"
	"time"
)

type SessionID string
type MessageID string

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// EngineeringDomain is the persona a session is scoped to.
type EngineeringDomain string

const (
	DomainSoftware   EngineeringDomain = "Software Engineering"
	DomainMechanical EngineeringDomain = "Mechanical Engineering"
	DomainElectrical EngineeringDomain = "Electrical Engineering"
	DomainCivil      EngineeringDomain = "Civil Engineering"
	DomainSystems    EngineeringDomain = "Systems Engineering"
	DomainChemical   EngineeringDomain = "Chemical Engineering"
)

var allDomains = []EngineeringDomain{
	DomainSoftware,
	DomainMechanical,
	DomainElectrical,
	DomainCivil,
	DomainSystems,
	DomainChemical,
}

// AllDomains returns the engineering domains in declaration order.
func AllDomains() []EngineeringDomain {
	out := make([]EngineeringDomain, len(allDomains))
	copy(out, allDomains)
	return out
}

// Valid reports whether d is one of the known domains.
func (d EngineeringDomain) Valid() bool {
	for _, known := range allDomains {
		if d == known {
			return true
		}
	}
	return false
}

// Key is the short lowercase name ("software", "civil", ...).
func (d EngineeringDomain) Key() string {
	first, _, _ := strings.Cut(string(d), " ")
	return strings.ToLower(first)
}

// ParseEngineeringDomain accepts the full label or its short key, case-insensitive.
func ParseEngineeringDomain(s string) (EngineeringDomain, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	for _, d := range allDomains {
		if s == strings.ToLower(string(d)) || s == d.Key() {
			return d, true
		}
	}
	return "", false
}

type Timestamp = time.Time
