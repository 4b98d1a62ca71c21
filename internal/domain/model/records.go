package model

import (
	"time"

	"gorm.io/gorm"
)

// Stage is the IFRS 9 credit-risk bucket.
type Stage int

const (
	Stage1 Stage = 1 // performing
	Stage2 Stage = 2 // significant increase in credit risk
	Stage3 Stage = 3 // non-performing
)

// Valid reports whether the stage is one of the three IFRS 9 buckets.
func (s Stage) Valid() bool { return s >= Stage1 && s <= Stage3 }

// Scenario names. Weights are configuration, validated to sum to 1.0.
const (
	ScenarioBaseline = "Baseline"
	ScenarioAdverse  = "Adverse"
	ScenarioSevere   = "SeverelyAdverse"
	ScenarioWeighted = "Weighted" // synthetic row carrying the final blend
)

// AllScenarios lists the macro scenarios in blending order.
func AllScenarios() []string {
	return []string{ScenarioBaseline, ScenarioAdverse, ScenarioSevere}
}

// Loan is the originated contract. Immutable after origination except for
// balance and status, which live on the feature snapshot.
type Loan struct {
	ID              uint64         `gorm:"primaryKey;column:id" json:"-"`
	LoanID          string         `gorm:"size:32;uniqueIndex" json:"loan_id"`
	CustomerID      string         `gorm:"size:32;index" json:"customer_id"`
	ProductType     ProductType    `gorm:"size:16;index" json:"product_type"`
	Province        string         `gorm:"size:4" json:"province"`
	OriginationDate time.Time      `json:"origination_date"`
	OriginalAmount  float64        `gorm:"type:decimal(18,2)" json:"original_amount"`
	InterestRate    float64        `gorm:"type:decimal(8,6)" json:"interest_rate"`
	CreditScore     int            `json:"credit_score"`
	LoanToValue     float64        `gorm:"type:decimal(8,6)" json:"loan_to_value"`
	AnnualIncome    float64        `gorm:"type:decimal(18,2)" json:"annual_income"`
	DefaultFlag     bool           `json:"default_flag"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"-"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Loan) TableName() string { return "loans" }

// PaymentObservation is one row of the append-only payment time series.
type PaymentObservation struct {
	ID              uint64    `gorm:"primaryKey" json:"-"`
	LoanID          string    `gorm:"size:32;index:idx_payments_loan_date" json:"loan_id"`
	PaymentDate     time.Time `gorm:"index:idx_payments_loan_date" json:"payment_date"`
	ScheduledAmount float64   `gorm:"type:decimal(18,2)" json:"scheduled_amount"`
	ActualAmount    float64   `gorm:"type:decimal(18,2)" json:"actual_amount"`
	DaysPastDue     int       `json:"days_past_due"`
}

func (PaymentObservation) TableName() string { return "payment_observations" }

// LoanFeatureSnapshot is the point-in-time feature row a calculation run
// derives for each loan, recomputed at every observation date.
type LoanFeatureSnapshot struct {
	ID              uint64      `gorm:"primaryKey" json:"-"`
	LoanID          string      `gorm:"size:32;index:idx_snapshots_loan_date" json:"loan_id"`
	ObservationDate time.Time   `gorm:"index:idx_snapshots_loan_date" json:"observation_date"`
	CurrentBalance  float64     `gorm:"type:decimal(18,2)" json:"current_balance"`
	MonthsOnBook    int         `json:"months_on_book"`
	CurrentDPD      int         `json:"current_dpd"`
	MaxDPD3M        int         `json:"max_dpd_3m"`
	MaxDPD6M        int         `json:"max_dpd_6m"`
	MaxDPD12M       int         `json:"max_dpd_12m"`
	Stage           Stage       `json:"stage"`
	RiskSegment     string      `gorm:"size:16" json:"risk_segment"`
	ProductType     ProductType `gorm:"size:16" json:"product_type"`
}

func (LoanFeatureSnapshot) TableName() string { return "loan_feature_snapshots" }

// MacroScenario is one forecast row of the macro table, keyed by scenario
// name and forecast date.
type MacroScenario struct {
	ID                 uint64    `gorm:"primaryKey" json:"-"`
	ScenarioName       string    `gorm:"size:24;index:idx_macro_name_date" json:"scenario_name"`
	ForecastDate       time.Time `gorm:"index:idx_macro_name_date" json:"forecast_date"`
	UnemploymentRate   float64   `json:"unemployment_rate"`
	GDPGrowthYoY       float64   `json:"gdp_growth_yoy"`
	PolicyRate         float64   `json:"policy_rate"`
	HPIChangeYoY       float64   `json:"hpi_change_yoy"`
	OilPrice           float64   `json:"oil_price"`
	EconomicCycleScore float64   `json:"economic_cycle_score"`
	CreditConditions   float64   `json:"credit_conditions"`
	HousingRiskScore   float64   `json:"housing_risk_score"`
}

func (MacroScenario) TableName() string { return "macro_scenarios" }

// ModelInput carries the externally calibrated PD/LGD base estimates for a
// loan. The engine never fits these models itself.
type ModelInput struct {
	ID              uint64  `gorm:"primaryKey" json:"-"`
	LoanID          string  `gorm:"size:32;uniqueIndex" json:"loan_id"`
	PD12M           float64 `json:"pd_12m"`
	PDAtOrigination float64 `json:"pd_at_origination"`
	LGDBase         float64 `json:"lgd_base"`
	Challenger      bool    `json:"challenger"` // produced by the challenger model
}

func (ModelInput) TableName() string { return "model_inputs" }

// RiskEstimate is the per-loan, per-scenario term structure produced by a
// run. Immutable once written; reruns replace the whole partition.
type RiskEstimate struct {
	ID              uint64    `gorm:"primaryKey" json:"-"`
	LoanID          string    `gorm:"size:32;index:idx_risk_loan_date" json:"loan_id"`
	ScenarioName    string    `gorm:"size:24" json:"scenario_name"`
	CalculationDate time.Time `gorm:"index:idx_risk_loan_date" json:"calculation_date"`

	PD12M      float64    `json:"pd_12m"`
	PDLifetime float64    `json:"pd_lifetime"`
	PDByYear   [5]float64 `gorm:"-" json:"pd_by_year"`
	PDYear1    float64    `json:"pd_year1"`
	PDYear2    float64    `json:"pd_year2"`
	PDYear3    float64    `json:"pd_year3"`
	PDYear4    float64    `json:"pd_year4"`
	PDYear5    float64    `json:"pd_year5"`

	LGDPit      float64 `json:"lgd_pit"`
	LGDTtc      float64 `json:"lgd_ttc"`
	LGDExpected float64 `json:"lgd_expected"`
	LGDDownturn float64 `json:"lgd_downturn"`

	EADCurrent float64    `json:"ead_current"`
	EADByYear  [5]float64 `gorm:"-" json:"ead_by_year"`
	EADYear1   float64    `json:"ead_year1"`
	EADYear2   float64    `json:"ead_year2"`
	EADYear3   float64    `json:"ead_year3"`
	EADYear4   float64    `json:"ead_year4"`
	EADYear5   float64    `json:"ead_year5"`
}

func (RiskEstimate) TableName() string { return "risk_estimates" }

// SyncColumns copies the fixed-size arrays into their persisted columns.
// gorm cannot map arrays, so both representations are kept in sync.
func (r *RiskEstimate) SyncColumns() {
	r.PDYear1, r.PDYear2, r.PDYear3, r.PDYear4, r.PDYear5 =
		r.PDByYear[0], r.PDByYear[1], r.PDByYear[2], r.PDByYear[3], r.PDByYear[4]
	r.EADYear1, r.EADYear2, r.EADYear3, r.EADYear4, r.EADYear5 =
		r.EADByYear[0], r.EADByYear[1], r.EADByYear[2], r.EADByYear[3], r.EADByYear[4]
}

// LoadColumns restores the arrays from the persisted columns after a read.
func (r *RiskEstimate) LoadColumns() {
	r.PDByYear = [5]float64{r.PDYear1, r.PDYear2, r.PDYear3, r.PDYear4, r.PDYear5}
	r.EADByYear = [5]float64{r.EADYear1, r.EADYear2, r.EADYear3, r.EADYear4, r.EADYear5}
}

// EclResult is the provisioning outcome for one loan under one scenario.
// The Weighted pseudo-scenario row carries the final blended number after
// overlays, caps and floors.
type EclResult struct {
	ID              uint64    `gorm:"primaryKey" json:"-"`
	LoanID          string    `gorm:"size:32;index:idx_ecl_loan_date" json:"loan_id"`
	ScenarioName    string    `gorm:"size:24" json:"scenario_name"`
	CalculationDate time.Time `gorm:"index:idx_ecl_loan_date" json:"calculation_date"`

	EAD           float64     `json:"ead"`
	PD12M         float64     `json:"pd_12m"`
	PDLifetime    float64     `json:"pd_lifetime"`
	LGD           float64     `json:"lgd"`
	ECL12M        float64     `json:"ecl_12m"`
	ECLLifetime   float64     `json:"ecl_lifetime"`
	ECLFinal      float64     `json:"ecl_final"`
	Stage         Stage       `json:"stage"`
	ProductType   ProductType `gorm:"size:16" json:"product_type"`
	OverlayFactor float64     `json:"overlay_factor"`
	CoverageRatio float64     `json:"coverage_ratio"`
	Flagged       bool        `json:"flagged"` // used a fallback model input
}

func (EclResult) TableName() string { return "ecl_results" }

// StageTransition records a stage move between consecutive observation
// dates for migration reporting.
type StageTransition struct {
	ID         uint64    `gorm:"primaryKey" json:"-"`
	LoanID     string    `gorm:"size:32;index" json:"loan_id"`
	StageFrom  Stage     `json:"stage_from"`
	StageTo    Stage     `json:"stage_to"`
	ObservedAt time.Time `json:"observed_at"`
}

func (StageTransition) TableName() string { return "stage_transitions" }

// RunLog is the per-run audit row: one per committed or failed run.
type RunLog struct {
	ID              uint64    `gorm:"primaryKey" json:"-"`
	RunID           string    `gorm:"size:36;uniqueIndex" json:"run_id"`
	CalculationDate time.Time `json:"calculation_date"`
	Status          string    `gorm:"size:16" json:"status"`
	LoansProcessed  int       `json:"loans_processed"`
	LoansExcluded   int       `json:"loans_excluded"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Message         string    `gorm:"type:text" json:"message"`
}

func (RunLog) TableName() string { return "run_logs" }
