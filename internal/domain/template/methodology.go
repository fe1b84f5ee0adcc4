package template

// Methodology is a named compliance profile that augments a template with
// funder-specific steps, rules, and approval gates
type Methodology string

const (
	// MethodologyNone means the template carries no funder profile
	MethodologyNone Methodology = ""

	MethodologyUSAID     Methodology = "usaid"
	MethodologyEUECHO    Methodology = "eu_echo"
	MethodologyWorldBank Methodology = "worldbank"
)

var knownMethodologies = map[Methodology]bool{
	MethodologyUSAID:     true,
	MethodologyEUECHO:    true,
	MethodologyWorldBank: true,
}

// IsKnown returns true if the methodology is one of the supported profiles.
// MethodologyNone is not "known": it means no adaptation applies.
func (m Methodology) IsKnown() bool {
	return knownMethodologies[m]
}

// String returns the string representation of the methodology
func (m Methodology) String() string {
	return string(m)
}
