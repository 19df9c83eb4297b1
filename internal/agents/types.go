// Package agents provides the agent data model: professions, needs, and
// per-agent statistics. Agents are mutated only by the action engine (on
// submitted actions) and the tick pipeline (passive phases).
package agents

// Profession is an agent's primary economic role.
type Profession string

const (
	ProfessionLaborer    Profession = "laborer"
	ProfessionShopkeeper Profession = "shopkeeper"
	ProfessionPolice     Profession = "police"
	ProfessionEngineer   Profession = "engineer"
	ProfessionArtist     Profession = "artist"
)

// BaseSalary returns the per-tick base salary for a profession, before the
// treasury band multiplier and hunger penalty are applied.
func BaseSalary(p Profession) int64 {
	switch p {
	case ProfessionShopkeeper:
		return 8
	case ProfessionPolice:
		return 10
	case ProfessionEngineer:
		return 12
	case ProfessionArtist:
		return 6
	default:
		return 7
	}
}

// ValidProfession reports whether p is a known profession.
func ValidProfession(p Profession) bool {
	switch p {
	case ProfessionLaborer, ProfessionShopkeeper, ProfessionPolice,
		ProfessionEngineer, ProfessionArtist:
		return true
	}
	return false
}

// Status is an agent's lifecycle state.
type Status string

const (
	StatusActive Status = "active"
	StatusJailed Status = "jailed"
)

// Stats tracks cumulative per-agent counters.
type Stats struct {
	WorkHours        int64 `json:"work_hours"`
	CrimeCount       int64 `json:"crime_count"`
	SuccessfulThefts int64 `json:"successful_thefts"`
	TaxPaid          int64 `json:"tax_paid"`
}

// Agent is a simulated actor. Needs and reputation are always re-clamped to
// their legal range in the same mutation that moves them, so no out-of-range
// value is ever observable.
type Agent struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	AIModel    string     `json:"ai_model,omitempty"`
	Profession Profession `json:"profession"`

	EmployerID string `json:"employer_id,omitempty"` // building ID, empty = unemployed
	AccountID  string `json:"account_id"`

	Reputation int `json:"reputation"` // 0–100
	Hunger     int `json:"hunger"`     // 0–100, 0 = starving
	Rest       int `json:"rest"`       // 0–100, 0 = exhausted
	Fun        int `json:"fun"`        // 0–100

	Status       Status `json:"status"`
	JailedAtTick uint64 `json:"jailed_at_tick,omitempty"`

	Stats          Stats  `json:"stats"`
	LastActiveTick uint64 `json:"last_active_tick"`
	JoinedTick     uint64 `json:"joined_tick"`
}

// Snapshot returns a copy safe to hand to external consumers.
func (a *Agent) Snapshot() Agent {
	return *a
}

// Employed reports whether the agent currently holds a job.
func (a *Agent) Employed() bool {
	return a.EmployerID != ""
}
