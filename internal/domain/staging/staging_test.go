package staging_test

import (
	"testing"
	"time"

	"github.com/okian/ifrs9/internal/domain/model"
	"github.com/okian/ifrs9/internal/domain/staging"
	. "github.com/smartystreets/goconvey/convey"
)

func TestAssign(t *testing.T) {
	Convey("Given a staging engine with the default SICR threshold", t, func() {
		eng := staging.New()

		Convey("When current DPD is at or above 90", func() {
			Convey("Then the loan is Stage 3 regardless of other signals", func() {
				So(eng.Assign(staging.Input{CurrentDPD: 90}), ShouldEqual, model.Stage3)
				So(eng.Assign(staging.Input{CurrentDPD: 120, PDCurrent: 0.001, PDOrigination: 0.5}), ShouldEqual, model.Stage3)
			})
		})

		Convey("When the 12-month max DPD is at or above 90", func() {
			So(eng.Assign(staging.Input{CurrentDPD: 0, MaxDPD12M: 95}), ShouldEqual, model.Stage3)
		})

		Convey("When the explicit default flag is set", func() {
			So(eng.Assign(staging.Input{DefaultFlag: true}), ShouldEqual, model.Stage3)
		})

		Convey("When current DPD crosses the SICR trigger", func() {
			So(eng.Assign(staging.Input{CurrentDPD: 30}), ShouldEqual, model.Stage2)
			So(eng.Assign(staging.Input{CurrentDPD: 35}), ShouldEqual, model.Stage2)
		})

		Convey("When the 12-month max DPD crosses 60", func() {
			So(eng.Assign(staging.Input{MaxDPD12M: 60}), ShouldEqual, model.Stage2)
		})

		Convey("When the current PD doubled against origination", func() {
			in := staging.Input{PDCurrent: 0.05, PDOrigination: 0.02}
			So(eng.Assign(in), ShouldEqual, model.Stage2)
		})

		Convey("When only one PD estimate is known the relative rule is skipped", func() {
			So(eng.Assign(staging.Input{PDCurrent: 0.5}), ShouldEqual, model.Stage1)
			So(eng.Assign(staging.Input{PDOrigination: 0.001}), ShouldEqual, model.Stage1)
		})

		Convey("When there are no adverse signals", func() {
			So(eng.Assign(staging.Input{}), ShouldEqual, model.Stage1)
			So(eng.Assign(staging.Input{CurrentDPD: 29, MaxDPD12M: 59}), ShouldEqual, model.Stage1)
		})

		Convey("When current DPD increases the stage never decreases", func() {
			prev := model.Stage1
			for dpd := 0; dpd <= 120; dpd += 5 {
				got := eng.Assign(staging.Input{CurrentDPD: dpd})
				So(got, ShouldBeGreaterThanOrEqualTo, prev)
				prev = got
			}
		})
	})

	Convey("Given a custom SICR threshold of 3.0", t, func() {
		eng := staging.New(staging.WithSICRThreshold(3.0))

		Convey("Then a doubled PD no longer trips Stage 2", func() {
			So(eng.Assign(staging.Input{PDCurrent: 0.04, PDOrigination: 0.02}), ShouldEqual, model.Stage1)
			So(eng.Assign(staging.Input{PDCurrent: 0.07, PDOrigination: 0.02}), ShouldEqual, model.Stage2)
		})
	})
}

func TestTracker(t *testing.T) {
	Convey("Given a migration tracker", t, func() {
		tr := staging.NewTracker()
		now := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
		next := now.AddDate(0, 1, 0)

		Convey("When a loan is observed for the first time", func() {
			_, moved := tr.Observe("L1", model.Stage1, now)

			Convey("Then no transition is recorded", func() {
				So(moved, ShouldBeFalse)
				So(tr.Transitions(), ShouldBeEmpty)
			})
		})

		Convey("When a credit card flips from Stage 1 to Stage 2 at dpd 35", func() {
			eng := staging.New()
			tr.Observe("L2", eng.Assign(staging.Input{CurrentDPD: 0}), now)
			got, moved := tr.Observe("L2", eng.Assign(staging.Input{CurrentDPD: 35}), next)

			Convey("Then the very next observation records the 1->2 move", func() {
				So(moved, ShouldBeTrue)
				So(got.StageFrom, ShouldEqual, model.Stage1)
				So(got.StageTo, ShouldEqual, model.Stage2)
				So(tr.Matrix()[0][1], ShouldEqual, 1)
			})
		})

		Convey("When the stage does not change between observations", func() {
			tr.Observe("L3", model.Stage2, now)
			_, moved := tr.Observe("L3", model.Stage2, next)

			Convey("Then nothing is recorded", func() {
				So(moved, ShouldBeFalse)
				So(tr.Matrix()[1][1], ShouldEqual, 0)
			})
		})
	})
}
