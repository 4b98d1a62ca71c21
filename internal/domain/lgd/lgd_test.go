package lgd_test

import (
	"context"
	"os"
	"testing"

	"github.com/okian/ifrs9/internal/domain/lgd"
	"github.com/okian/ifrs9/internal/domain/model"
	"github.com/okian/ifrs9/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func testSegments() map[model.ProductType]lgd.Segment {
	return map[model.ProductType]lgd.Segment{
		model.ProductMortgage: {Sigma: 0.08, LongRunAverage: 0.12},
		model.ProductAutoLoan: {Sigma: 0.12, LongRunAverage: 0.35},
		model.ProductCreditCard: {Sigma: 0.08, LongRunAverage: 0.78, Bands: []lgd.ScoreBand{
			{MinScore: 780, LGD: 0.70},
			{MinScore: 660, LGD: 0.78},
			{MinScore: 0, LGD: 0.88},
		}},
	}
}

func TestEstimateSecured(t *testing.T) {
	Convey("Given an estimator with calibrated segments", t, func() {
		e := lgd.New(lgd.WithSegments(testSegments()))
		ctx := context.Background()

		Convey("When estimating a performing mortgage at 90% LTV", func() {
			set := e.Estimate(ctx, lgd.Input{
				Product:        model.ProductMortgage,
				Stage:          model.Stage1,
				LoanToValue:    0.90,
				OriginalAmount: 300_000,
			})

			Convey("Then the collateral comfortably covers the exposure and the floor binds", func() {
				// collateral 333k, recovery 333k*0.95*0.95 > original, implied 0.
				So(set.Pit, ShouldAlmostEqual, 0.10, 1e-12)
			})

			Convey("Then the TTC blend mixes in the long-run average", func() {
				So(set.Ttc, ShouldAlmostEqual, 0.7*0.10+0.3*0.12, 1e-12)
			})

			Convey("Then downturn adds 1.5 sigma and stays under the secured cap", func() {
				So(set.Downturn, ShouldAlmostEqual, set.Expected+1.5*0.08, 1e-12)
				So(set.Downturn, ShouldBeLessThanOrEqualTo, 0.95)
			})
		})

		Convey("When the same mortgage is Stage 3", func() {
			stage1 := e.Estimate(ctx, lgd.Input{
				Product: model.ProductMortgage, Stage: model.Stage1,
				LoanToValue: 1.30, OriginalAmount: 300_000,
			})
			stage3 := e.Estimate(ctx, lgd.Input{
				Product: model.ProductMortgage, Stage: model.Stage3,
				LoanToValue: 1.30, OriginalAmount: 300_000,
			})

			Convey("Then the deeper forced-sale discount raises the PIT LGD", func() {
				So(stage3.Pit, ShouldBeGreaterThan, stage1.Pit)
			})
		})

		Convey("When an explicit collateral value is supplied", func() {
			set := e.Estimate(ctx, lgd.Input{
				Product: model.ProductAutoLoan, Stage: model.Stage1,
				OriginalAmount: 40_000, CollateralValue: 30_000,
			})

			Convey("Then the implied loss reflects the auto recovery haircut", func() {
				// recovery = 30000*0.95*0.70 = 19950; implied = 1-19950/40000.
				So(set.Pit, ShouldAlmostEqual, 1-19_950.0/40_000.0, 1e-12)
			})
		})
	})
}

func TestEstimateUnsecured(t *testing.T) {
	Convey("Given an estimator with calibrated segments", t, func() {
		e := lgd.New(lgd.WithSegments(testSegments()))
		ctx := context.Background()

		Convey("When estimating a prime credit card borrower", func() {
			set := e.Estimate(ctx, lgd.Input{
				Product: model.ProductCreditCard, Stage: model.Stage1, CreditScore: 800,
			})

			Convey("Then the 780+ band applies but the 75% product floor binds", func() {
				So(set.Pit, ShouldAlmostEqual, 0.75, 1e-12)
			})
		})

		Convey("When estimating a subprime credit card borrower", func() {
			set := e.Estimate(ctx, lgd.Input{
				Product: model.ProductCreditCard, Stage: model.Stage2, CreditScore: 540,
			})

			Convey("Then the bottom band applies above the floor", func() {
				So(set.Pit, ShouldAlmostEqual, 0.88, 1e-12)
			})

			Convey("Then downturn is capped at 1.0 for unsecured products", func() {
				So(set.Downturn, ShouldBeLessThanOrEqualTo, 1.0)
			})
		})
	})
}

func TestScenarioAdjust(t *testing.T) {
	Convey("Given an estimator and a severely adverse scenario", t, func() {
		e := lgd.New(lgd.WithSegments(testSegments()))
		ctx := context.Background()
		severe := model.MacroScenario{
			ScenarioName:     model.ScenarioSevere,
			HPIChangeYoY:     -25,
			UnemploymentRate: 10,
			PolicyRate:       6,
		}

		set := e.Estimate(ctx, lgd.Input{
			Product: model.ProductCreditCard, Stage: model.Stage2, CreditScore: 700,
		})

		Convey("When applying the scenario adjustment", func() {
			adj := e.ScenarioAdjust(ctx, set, severe)

			Convey("Then expected LGD rises but never exceeds the 0.99 cap", func() {
				So(adj.Expected, ShouldBeGreaterThan, set.Expected)
				So(adj.Expected, ShouldBeLessThanOrEqualTo, 0.99)
			})

			Convey("Then downturn LGD caps at 1.0", func() {
				So(adj.Downturn, ShouldBeLessThanOrEqualTo, 1.0)
			})

			Convey("Then the point-in-time and TTC measures are untouched", func() {
				So(adj.Pit, ShouldEqual, set.Pit)
				So(adj.Ttc, ShouldEqual, set.Ttc)
			})
		})
	})
}
