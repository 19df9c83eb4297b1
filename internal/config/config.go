// Package config loads the economic tuning file that parameterizes a city.
// Every rate, threshold, and cap the simulation uses lives here so a city
// can be rebalanced without a rebuild.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds all simulation constants for one city.
type Tuning struct {
	TickIntervalMs int `yaml:"tick_interval_ms"`

	// Calendar. A tick is one sim-hour.
	TicksPerDay    uint64 `yaml:"ticks_per_day"`
	TicksPerWeek   uint64 `yaml:"ticks_per_week"`
	TicksPerSeason uint64 `yaml:"ticks_per_season"`

	// Skipped-tick policy. False (the default) drops a tick that fires while
	// a previous tick is still running; true re-runs it immediately after.
	CatchUp bool `yaml:"catch_up"`

	// Starting grants (minted from the NPC pool).
	StartingBalance int64 `yaml:"starting_balance"`
	TreasurySeed    int64 `yaml:"treasury_seed"`

	// Needs decay per tick.
	HungerDecay int `yaml:"hunger_decay"`
	RestDecay   int `yaml:"rest_decay"`
	FunDecay    int `yaml:"fun_decay"`

	// Action costs and yields.
	MealCost     int64 `yaml:"meal_cost"`
	MealHunger   int   `yaml:"meal_hunger"`
	SleepRest    int   `yaml:"sleep_rest"`
	RelaxCost    int64 `yaml:"relax_cost"`
	RelaxFun     int   `yaml:"relax_fun"`
	WorkRestCost int   `yaml:"work_rest_cost"`
	WorkFunCost  int   `yaml:"work_fun_cost"`

	// Taxes and policy.
	TaxRate     float64 `yaml:"tax_rate"`
	PolicyClamp float64 `yaml:"policy_clamp"` // cumulative per-category modifier bound

	// Crime resolution.
	CrimeBaseCatch      float64 `yaml:"crime_base_catch"`
	CrimePerPoliceBonus float64 `yaml:"crime_per_police_bonus"`
	CrimeFatiguePenalty float64 `yaml:"crime_fatigue_penalty"`
	CrimeFineRate       float64 `yaml:"crime_fine_rate"`
	TheftRate           float64 `yaml:"theft_rate"`
	TheftCap            int64   `yaml:"theft_cap"`
	JailTicks           uint64  `yaml:"jail_ticks"`

	// Treasury band hysteresis over a moving average of the balance.
	BandWindow  int   `yaml:"band_window"`
	CrisisEnter int64 `yaml:"crisis_enter"`
	CrisisExit  int64 `yaml:"crisis_exit"`
	BoomEnter   int64 `yaml:"boom_enter"`
	BoomExit    int64 `yaml:"boom_exit"`

	// Band multipliers applied by the pipeline.
	DemandMultCrisis float64 `yaml:"demand_mult_crisis"`
	DemandMultNormal float64 `yaml:"demand_mult_normal"`
	DemandMultBoom   float64 `yaml:"demand_mult_boom"`
	SalaryMultCrisis float64 `yaml:"salary_mult_crisis"`
	SalaryMultNormal float64 `yaml:"salary_mult_normal"`
	SalaryMultBoom   float64 `yaml:"salary_mult_boom"`

	// Demand budget ramp (first N ticks of each season).
	DemandRampTicks  uint64  `yaml:"demand_ramp_ticks"`
	DemandBaseRate   float64 `yaml:"demand_base_rate"`
	DemandMin        int64   `yaml:"demand_min"`
	DemandMax        int64   `yaml:"demand_max"`
	TreasuryFloor    int64   `yaml:"treasury_floor"`
	ImportFeeRate    float64 `yaml:"import_fee_rate"`
	OwnerProfitShare float64 `yaml:"owner_profit_share"`

	// Weekly charges.
	LivingExpense    int64  `yaml:"living_expense"`
	LivingRepPenalty int    `yaml:"living_rep_penalty"`
	IdleTicks        uint64 `yaml:"idle_ticks"`
	IdleRepDecay     int    `yaml:"idle_rep_decay"`

	// City manager heuristics.
	UnemploymentLimit  float64 `yaml:"unemployment_limit"`
	HomelessnessLimit  float64 `yaml:"homelessness_limit"`
	CrimeRateLimit     float64 `yaml:"crime_rate_limit"`
	MunicipalPerAgents int     `yaml:"municipal_per_agents"` // one municipal building per this many active agents
	ClosedRatioBreaker float64 `yaml:"closed_ratio_breaker"`
	RingSearchRadius   int     `yaml:"ring_search_radius"`

	// Land.
	ParcelBasePrice int64 `yaml:"parcel_base_price"`

	// Cooldown map compaction threshold.
	CooldownCompactSize int `yaml:"cooldown_compact_size"`
}

// Default returns the baseline tuning used when no file is supplied.
func Default() *Tuning {
	return &Tuning{
		TickIntervalMs: 5000,

		TicksPerDay:    24,
		TicksPerWeek:   168,
		TicksPerSeason: 2016,

		StartingBalance: 100,
		TreasurySeed:    10000,

		HungerDecay: 2,
		RestDecay:   1,
		FunDecay:    1,

		MealCost:     5,
		MealHunger:   30,
		SleepRest:    40,
		RelaxCost:    3,
		RelaxFun:     20,
		WorkRestCost: 10,
		WorkFunCost:  5,

		TaxRate:     0.10,
		PolicyClamp: 0.05,

		CrimeBaseCatch:      0.05,
		CrimePerPoliceBonus: 0.10,
		CrimeFatiguePenalty: 0.10,
		CrimeFineRate:       0.20,
		TheftRate:           0.15,
		TheftCap:            50,
		JailTicks:           24,

		BandWindow:  20,
		CrisisEnter: 2000,
		CrisisExit:  3000,
		BoomEnter:   20000,
		BoomExit:    16000,

		DemandMultCrisis: 0.5,
		DemandMultNormal: 1.0,
		DemandMultBoom:   1.5,
		SalaryMultCrisis: 0.8,
		SalaryMultNormal: 1.0,
		SalaryMultBoom:   1.2,

		DemandRampTicks:  96,
		DemandBaseRate:   0.04,
		DemandMin:        50,
		DemandMax:        5000,
		TreasuryFloor:    1000,
		ImportFeeRate:    0.10,
		OwnerProfitShare: 0.30,

		LivingExpense:    15,
		LivingRepPenalty: 5,
		IdleTicks:        336,
		IdleRepDecay:     2,

		UnemploymentLimit:  0.25,
		HomelessnessLimit:  0.50,
		CrimeRateLimit:     0.10,
		MunicipalPerAgents: 5,
		ClosedRatioBreaker: 0.30,
		RingSearchRadius:   40,

		ParcelBasePrice: 50,

		CooldownCompactSize: 4096,
	}
}

// Load reads tuning from a yaml file, applying defaults for omitted fields.
func Load(path string) (*Tuning, error) {
	t := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tuning: %w", err)
	}
	if err := yaml.Unmarshal(raw, t); err != nil {
		return nil, fmt.Errorf("parse tuning: %w", err)
	}
	return t, nil
}
