// Package genportfolio produces a synthetic retail loan book with the
// statistical shape of a Canadian portfolio: product and province mixes,
// lognormal balances, score-driven default flags and a delinquency-laced
// payment history. It exists so a fresh database can be seeded for
// end-to-end runs without real customer data.
package genportfolio

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/okian/ifrs9/internal/domain/model"
)

// Book is the full generated data set, ready for the repository Save
// methods.
type Book struct {
	Loans    []model.Loan
	Payments []model.PaymentObservation
	Macros   []model.MacroScenario
	Inputs   []model.ModelInput
}

// Generator builds synthetic books deterministically from a seed.
type Generator struct {
	rng       *rand.Rand
	loanCount int
	asOf      time.Time
}

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithSeed fixes the random seed so generated books are reproducible.
func WithSeed(seed int64) Option {
	return func(g *Generator) { g.rng = rand.New(rand.NewSource(seed)) }
}

// WithLoanCount sets the number of loans to generate.
func WithLoanCount(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.loanCount = n
		}
	}
}

// WithAsOf sets the reference date payments and forecasts are anchored to.
func WithAsOf(t time.Time) Option {
	return func(g *Generator) { g.asOf = t }
}

const defaultLoanCount = 10000

// New creates a Generator with a time-based seed unless WithSeed is given.
func New(opts ...Option) *Generator {
	g := &Generator{
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		loanCount: defaultLoanCount,
		asOf:      time.Now().UTC().Truncate(24 * time.Hour),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Product mix and province mix, in cumulative-probability order.
var productMix = []struct {
	product model.ProductType
	weight  float64
}{
	{model.ProductMortgage, 0.35},
	{model.ProductHELOC, 0.15},
	{model.ProductAutoLoan, 0.25},
	{model.ProductPersonalLoan, 0.15},
	{model.ProductCreditCard, 0.10},
}

var provinceMix = []struct {
	province string
	weight   float64
}{
	{"ON", 0.38},
	{"BC", 0.13},
	{"QC", 0.23},
	{"AB", 0.11},
	{"MB", 0.08},
	{"SK", 0.07},
}

// Generate builds the complete book: loans, their payment histories, the
// three macro scenario forecasts and externally calibrated model inputs.
func (g *Generator) Generate() Book {
	loans := g.loans()
	return Book{
		Loans:    loans,
		Payments: g.payments(loans),
		Macros:   g.macros(),
		Inputs:   g.modelInputs(loans),
	}
}

func (g *Generator) loans() []model.Loan {
	loans := make([]model.Loan, 0, g.loanCount)
	for i := 0; i < g.loanCount; i++ {
		product := pickProduct(g.rng, productMix)
		score := clampInt(int(g.rng.NormFloat64()*80+700), 300, 900)

		// Mortgages carry a tighter, larger balance distribution.
		amount := lognormal(g.rng, 11, 1.5)
		if product == model.ProductMortgage {
			amount = lognormal(g.rng, 12.5, 0.8)
		}

		// Origination spread evenly over the three years before asOf so
		// months-on-book varies across the book.
		monthsBack := 1 + g.rng.Intn(36)
		origination := g.asOf.AddDate(0, -monthsBack, 0)

		// Default propensity falls off with credit score.
		defaultProb := 1 / (1 + math.Exp(float64(score-650)/50))

		loans = append(loans, model.Loan{
			LoanID:          loanID(i),
			CustomerID:      customerID(i),
			ProductType:     product,
			Province:        pickProvince(g.rng, provinceMix),
			OriginationDate: origination,
			OriginalAmount:  round2(amount),
			InterestRate:    0.02 + g.rng.Float64()*0.06,
			CreditScore:     score,
			LoanToValue:     beta52(g.rng),
			AnnualIncome:    round2(lognormal(g.rng, 10.8, 0.6)),
			DefaultFlag:     g.rng.Float64() < defaultProb,
		})
	}
	return loans
}

// payments builds a monthly history from origination to asOf. Defaulted
// loans pick up late payments with the delinquency skewed mild.
func (g *Generator) payments(loans []model.Loan) []model.PaymentObservation {
	dpdChoices := []int{0, 30, 60, 90}
	dpdWeights := []float64{0.4, 0.3, 0.2, 0.1}

	var rows []model.PaymentObservation
	for _, loan := range loans {
		scheduled := round2(loan.OriginalAmount / 360)
		for due := loan.OriginationDate.AddDate(0, 1, 0); !due.After(g.asOf); due = due.AddDate(0, 1, 0) {
			dpd := 0
			if loan.DefaultFlag && g.rng.Float64() < 0.3 {
				dpd = dpdChoices[pickWeighted(g.rng, dpdWeights)]
			}
			actual := scheduled
			if dpd > 0 {
				actual = 0
			}
			rows = append(rows, model.PaymentObservation{
				LoanID:          loan.LoanID,
				PaymentDate:     due,
				ScheduledAmount: scheduled,
				ActualAmount:    actual,
				DaysPastDue:     dpd,
			})
		}
	}
	return rows
}

// macros emits one forecast row per scenario dated at asOf.
func (g *Generator) macros() []model.MacroScenario {
	return []model.MacroScenario{
		{
			ScenarioName: model.ScenarioBaseline, ForecastDate: g.asOf,
			UnemploymentRate: 5.5, GDPGrowthYoY: 2.0, PolicyRate: 3.0,
			HPIChangeYoY: 3.0, OilPrice: 75,
			EconomicCycleScore: 0.2, CreditConditions: 0.1, HousingRiskScore: 0.3,
		},
		{
			ScenarioName: model.ScenarioAdverse, ForecastDate: g.asOf,
			UnemploymentRate: 8.5, GDPGrowthYoY: -3.0, PolicyRate: 5.0,
			HPIChangeYoY: -12.0, OilPrice: 55,
			EconomicCycleScore: -0.6, CreditConditions: -0.4, HousingRiskScore: 0.7,
		},
		{
			ScenarioName: model.ScenarioSevere, ForecastDate: g.asOf,
			UnemploymentRate: 10.0, GDPGrowthYoY: -5.5, PolicyRate: 6.0,
			HPIChangeYoY: -19.5, OilPrice: 40,
			EconomicCycleScore: -0.9, CreditConditions: -0.8, HousingRiskScore: 0.9,
		},
	}
}

// modelInputs derives the externally calibrated PD/LGD estimates from the
// same score curve the default flags were drawn with, plus noise, so
// backtesting has signal to find.
func (g *Generator) modelInputs(loans []model.Loan) []model.ModelInput {
	inputs := make([]model.ModelInput, 0, len(loans))
	for _, loan := range loans {
		pd := 1 / (1 + math.Exp(float64(loan.CreditScore-650)/50))
		noise := math.Exp(g.rng.NormFloat64() * 0.25)

		lgd := loan.ProductType.Params().LGDFloor + g.rng.Float64()*0.15

		inputs = append(inputs, model.ModelInput{
			LoanID:          loan.LoanID,
			PD12M:           clampFloat(pd*noise, 0.0001, 0.9999),
			PDAtOrigination: clampFloat(pd*math.Exp(g.rng.NormFloat64()*0.25), 0.0001, 0.9999),
			LGDBase:         clampFloat(lgd, 0, 1),
			Challenger:      g.rng.Float64() < 0.10,
		})
	}
	return inputs
}

func loanID(i int) string     { return fmtID('L', i) }
func customerID(i int) string { return fmtID('C', i) }

// fmtID renders the zero-padded eight-digit identifiers the loaders expect.
func fmtID(prefix byte, i int) string {
	buf := [9]byte{prefix, '0', '0', '0', '0', '0', '0', '0', '0'}
	for pos := 8; pos > 0 && i > 0; pos-- {
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[:])
}

// lognormal draws exp(N(mu, sigma)).
func lognormal(rng *rand.Rand, mu, sigma float64) float64 {
	return math.Exp(rng.NormFloat64()*sigma + mu)
}

// beta52 draws Beta(5,2) as the 5th order statistic of six uniforms.
func beta52(rng *rand.Rand) float64 {
	u := make([]float64, 6)
	for i := range u {
		u[i] = rng.Float64()
	}
	sort.Float64s(u)
	return u[4]
}

func pickProduct(rng *rand.Rand, mix []struct {
	product model.ProductType
	weight  float64
}) model.ProductType {
	r := rng.Float64()
	for _, entry := range mix {
		if r < entry.weight {
			return entry.product
		}
		r -= entry.weight
	}
	return mix[len(mix)-1].product
}

func pickProvince(rng *rand.Rand, mix []struct {
	province string
	weight   float64
}) string {
	r := rng.Float64()
	for _, entry := range mix {
		if r < entry.weight {
			return entry.province
		}
		r -= entry.weight
	}
	return mix[len(mix)-1].province
}

func pickWeighted(rng *rand.Rand, weights []float64) int {
	r := rng.Float64()
	for i, w := range weights {
		if r < w {
			return i
		}
		r -= w
	}
	return len(weights) - 1
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
