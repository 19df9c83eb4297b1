// Package buildings provides the building data model and the construction
// catalog: per-type costs, income, staffing, and footprints.
package buildings

import "github.com/talgya/civitas/internal/agents"

// Type enumerates constructible building kinds.
type Type string

const (
	TypeHouse         Type = "house"
	TypeShop          Type = "shop"
	TypeRestaurant    Type = "restaurant"
	TypeOffice        Type = "office"
	TypePark          Type = "park"
	TypePoliceStation Type = "police_station"
)

// Status is a building's lifecycle state.
type Status string

const (
	StatusActive            Status = "active"
	StatusUnderConstruction Status = "under_construction"
	StatusClosed            Status = "temporarily_closed"
)

// Spec describes one entry in the construction catalog.
type Spec struct {
	BuildCost     int64
	UpgradeCost   int64
	Income        int64 // per-tick gross demand weight; 0 = non-commercial
	OperatingCost int64 // accrued per tick, settled weekly
	MaxEmployees  int
	Width, Depth  int
	Commercial    bool
	// RequiredProfession restricts who can be hired, empty = anyone.
	RequiredProfession agents.Profession
}

// Catalog is the construction catalog keyed by building type.
var Catalog = map[Type]Spec{
	TypeHouse:      {BuildCost: 150, UpgradeCost: 100, OperatingCost: 2, Width: 2, Depth: 2},
	TypeShop:       {BuildCost: 300, UpgradeCost: 200, Income: 20, OperatingCost: 5, MaxEmployees: 3, Width: 3, Depth: 3, Commercial: true},
	TypeRestaurant: {BuildCost: 400, UpgradeCost: 250, Income: 28, OperatingCost: 8, MaxEmployees: 4, Width: 3, Depth: 3, Commercial: true},
	TypeOffice:     {BuildCost: 600, UpgradeCost: 400, Income: 40, OperatingCost: 12, MaxEmployees: 8, Width: 4, Depth: 4, Commercial: true},
	TypePark:       {BuildCost: 200, OperatingCost: 3, Width: 4, Depth: 4},
	TypePoliceStation: {BuildCost: 800, OperatingCost: 15, MaxEmployees: 5, Width: 4, Depth: 4,
		RequiredProfession: agents.ProfessionPolice},
}

// Known reports whether t is a cataloged building type.
func Known(t Type) bool {
	_, ok := Catalog[t]
	return ok
}

// Building is a placed structure with a linked account.
type Building struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Level     int    `json:"level"`
	OwnerID   string `json:"owner_id,omitempty"` // empty = municipal
	AccountID string `json:"account_id"`

	X int `json:"x"` // footprint origin (world grid)
	Z int `json:"z"`
	W int `json:"w"` // footprint extent
	D int `json:"d"`

	AssetKey string  `json:"asset_key,omitempty"`
	RotY     float64 `json:"rot_y,omitempty"`

	Employees []string `json:"employees"` // agent IDs, bounded by MaxEmployees
	Status    Status   `json:"status"`

	// AccruedUpkeep only increases during accrual and resets to zero exactly
	// once per weekly settlement, together with either the payment or the
	// transition to temporarily_closed.
	AccruedUpkeep int64 `json:"accrued_upkeep"`

	CreatedTick uint64 `json:"created_tick"`
}

// Spec returns the catalog entry for the building's type.
func (b *Building) Spec() Spec {
	return Catalog[b.Type]
}

// Income returns per-tick gross income scaled by level.
func (b *Building) Income() int64 {
	s := b.Spec()
	return s.Income * int64(b.Level)
}

// OperatingCost returns the per-tick operating cost scaled by level.
func (b *Building) OperatingCost() int64 {
	s := b.Spec()
	return s.OperatingCost * int64(b.Level)
}

// MaxEmployees returns the staffing cap scaled by level.
func (b *Building) MaxEmployees() int {
	s := b.Spec()
	if s.MaxEmployees == 0 {
		return 0
	}
	return s.MaxEmployees * b.Level
}

// Municipal reports whether the building has no private owner.
func (b *Building) Municipal() bool {
	return b.OwnerID == ""
}

// Overlaps reports whether two axis-aligned footprints intersect.
func Overlaps(ax, az, aw, ad, bx, bz, bw, bd int) bool {
	return ax < bx+bw && bx < ax+aw && az < bz+bd && bz < az+ad
}
