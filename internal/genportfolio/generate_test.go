package genportfolio_test

import (
	"testing"
	"time"

	"github.com/okian/ifrs9/internal/domain/model"
	"github.com/okian/ifrs9/internal/genportfolio"
	. "github.com/smartystreets/goconvey/convey"
)

var asOf = time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

func TestGenerate(t *testing.T) {
	Convey("Given a seeded generator", t, func() {
		g := genportfolio.New(
			genportfolio.WithSeed(42),
			genportfolio.WithLoanCount(2000),
			genportfolio.WithAsOf(asOf),
		)
		book := g.Generate()

		Convey("Then the book carries the requested number of loans", func() {
			So(len(book.Loans), ShouldEqual, 2000)
			So(len(book.Inputs), ShouldEqual, 2000)
			So(len(book.Macros), ShouldEqual, 3)
		})

		Convey("Then identifiers are zero-padded and unique", func() {
			So(book.Loans[0].LoanID, ShouldEqual, "L00000000")
			So(book.Loans[1999].LoanID, ShouldEqual, "L00001999")

			seen := make(map[string]bool, len(book.Loans))
			for _, loan := range book.Loans {
				So(seen[loan.LoanID], ShouldBeFalse)
				seen[loan.LoanID] = true
			}
		})

		Convey("Then loan attributes stay in their documented ranges", func() {
			for _, loan := range book.Loans {
				So(loan.CreditScore, ShouldBeBetweenOrEqual, 300, 900)
				So(loan.InterestRate, ShouldBeBetween, 0.02, 0.08)
				So(loan.LoanToValue, ShouldBeBetween, 0, 1)
				So(loan.OriginalAmount, ShouldBeGreaterThan, 0)
				So(loan.OriginationDate.Before(asOf), ShouldBeTrue)
			}
		})

		Convey("Then every product in the mix appears", func() {
			counts := make(map[model.ProductType]int)
			for _, loan := range book.Loans {
				counts[loan.ProductType]++
			}
			So(counts[model.ProductMortgage], ShouldBeGreaterThan, 0)
			So(counts[model.ProductHELOC], ShouldBeGreaterThan, 0)
			So(counts[model.ProductAutoLoan], ShouldBeGreaterThan, 0)
			So(counts[model.ProductPersonalLoan], ShouldBeGreaterThan, 0)
			So(counts[model.ProductCreditCard], ShouldBeGreaterThan, 0)

			// Mortgages dominate the mix.
			So(counts[model.ProductMortgage], ShouldBeGreaterThan, counts[model.ProductCreditCard])
		})

		Convey("Then payments run monthly from origination to the as-of date", func() {
			byLoan := make(map[string][]model.PaymentObservation)
			for _, p := range book.Payments {
				byLoan[p.LoanID] = append(byLoan[p.LoanID], p)
			}

			loan := book.Loans[0]
			rows := byLoan[loan.LoanID]
			So(len(rows), ShouldBeGreaterThan, 0)
			So(rows[0].PaymentDate, ShouldHappenAfter, loan.OriginationDate)
			So(rows[len(rows)-1].PaymentDate.After(asOf), ShouldBeFalse)

			for _, p := range rows {
				if p.DaysPastDue > 0 {
					So(p.ActualAmount, ShouldEqual, 0)
				} else {
					So(p.ActualAmount, ShouldEqual, p.ScheduledAmount)
				}
			}
		})

		Convey("Then only defaulted loans carry delinquency", func() {
			defaulted := make(map[string]bool, len(book.Loans))
			for _, loan := range book.Loans {
				defaulted[loan.LoanID] = loan.DefaultFlag
			}
			for _, p := range book.Payments {
				if p.DaysPastDue > 0 {
					So(defaulted[p.LoanID], ShouldBeTrue)
				}
			}
		})

		Convey("Then model inputs track the score curve", func() {
			byLoan := make(map[string]model.ModelInput, len(book.Inputs))
			for _, in := range book.Inputs {
				byLoan[in.LoanID] = in
			}

			var highScorePD, lowScorePD []float64
			for _, loan := range book.Loans {
				in := byLoan[loan.LoanID]
				So(in.PD12M, ShouldBeBetweenOrEqual, 0.0001, 0.9999)
				So(in.LGDBase, ShouldBeBetweenOrEqual, 0, 1)
				if loan.CreditScore >= 750 {
					highScorePD = append(highScorePD, in.PD12M)
				}
				if loan.CreditScore <= 550 {
					lowScorePD = append(lowScorePD, in.PD12M)
				}
			}
			So(mean(highScorePD), ShouldBeLessThan, mean(lowScorePD))
		})

		Convey("Then the same seed reproduces the same book", func() {
			again := genportfolio.New(
				genportfolio.WithSeed(42),
				genportfolio.WithLoanCount(2000),
				genportfolio.WithAsOf(asOf),
			).Generate()
			So(again.Loans[100], ShouldResemble, book.Loans[100])
			So(len(again.Payments), ShouldEqual, len(book.Payments))
		})
	})
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
