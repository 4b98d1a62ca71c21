package ead_test

import (
	"testing"

	"github.com/okian/ifrs9/internal/domain/ead"
	"github.com/okian/ifrs9/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestProjectAmortizing(t *testing.T) {
	Convey("Given an EAD projector", t, func() {
		p := ead.New()

		Convey("When projecting a new 300k mortgage at 5%", func() {
			prof := p.Project(model.ProductMortgage, 300_000, 0.05, 0, model.Stage1)

			Convey("Then the current exposure is the full principal", func() {
				So(prof.Current, ShouldAlmostEqual, 300_000, 1e-6)
			})

			Convey("Then the balance declines monotonically across the horizon", func() {
				prev := prof.Current
				for _, b := range prof.ByYear {
					So(b, ShouldBeLessThan, prev)
					So(b, ShouldBeGreaterThanOrEqualTo, 0)
					prev = b
				}
			})

			Convey("Then an annuity declines slower than straight-line early on", func() {
				straight := 300_000 * (1 - 12.0/300.0)
				So(prof.ByYear[0], ShouldBeGreaterThan, straight)
			})
		})

		Convey("When projecting a personal loan past its 60-month term", func() {
			prof := p.Project(model.ProductPersonalLoan, 20_000, 0.10, 72, model.Stage1)

			Convey("Then exposure floors at zero", func() {
				So(prof.Current, ShouldEqual, 0)
				for _, b := range prof.ByYear {
					So(b, ShouldEqual, 0)
				}
			})
		})

		Convey("When projecting an auto loan mid-term", func() {
			prof := p.Project(model.ProductAutoLoan, 42_000, 0.07, 42, model.Stage1)

			Convey("Then the straight-line balance is half the principal", func() {
				So(prof.Current, ShouldAlmostEqual, 21_000, 1e-6)
			})

			Convey("Then year 4 and beyond are fully amortized", func() {
				// 42 + 48 months > 84-month term.
				So(prof.ByYear[3], ShouldEqual, 0)
				So(prof.ByYear[4], ShouldEqual, 0)
			})
		})
	})
}

func TestProjectRevolving(t *testing.T) {
	Convey("Given an EAD projector and a 10k credit card limit", t, func() {
		p := ead.New()

		Convey("When the account is Stage 1", func() {
			prof := p.Project(model.ProductCreditCard, 10_000, 0.20, 24, model.Stage1)

			Convey("Then EAD is drawn 30% plus CCF 0.50 on the undrawn 70%", func() {
				So(prof.Current, ShouldAlmostEqual, 3_000+0.50*7_000, 1e-9)
			})

			Convey("Then the exposure is constant across the horizon", func() {
				for _, b := range prof.ByYear {
					So(b, ShouldAlmostEqual, prof.Current, 1e-9)
				}
			})
		})

		Convey("When the account deteriorates the exposure scales with stage", func() {
			s1 := p.Project(model.ProductCreditCard, 10_000, 0.20, 24, model.Stage1)
			s2 := p.Project(model.ProductCreditCard, 10_000, 0.20, 24, model.Stage2)
			s3 := p.Project(model.ProductCreditCard, 10_000, 0.20, 24, model.Stage3)

			So(s2.Current, ShouldBeGreaterThan, s1.Current)
			So(s3.Current, ShouldBeGreaterThan, s2.Current)

			Convey("And Stage 3 treats the whole limit as exposed", func() {
				// util 80% + CCF 1.00 on the remaining 20%.
				So(s3.Current, ShouldAlmostEqual, 10_000, 1e-9)
			})
		})
	})
}
