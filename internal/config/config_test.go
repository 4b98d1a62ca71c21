package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/ifrs9/internal/config"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNew(t *testing.T) {
	Convey("Given a config with default options", t, func() {
		cfg := config.New()

		Convey("Then the engine defaults are in place", func() {
			So(cfg.Addr, ShouldEqual, ":9080")
			So(cfg.QueueSize, ShouldEqual, 100_000)
			So(cfg.WorkerCount, ShouldBeGreaterThan, 0)
			So(cfg.Staging.SICRThreshold, ShouldEqual, 2.0)
			So(cfg.PD.LongRunAverage, ShouldEqual, 0.05)
			So(cfg.PD.DecayFactors, ShouldResemble, []float64{1.0, 0.95, 0.90, 0.85, 0.80})
			So(cfg.LGD.TTCWeight, ShouldEqual, 0.7)
			So(cfg.Stress.CapitalRatio, ShouldEqual, 0.08)
			So(cfg.Monitor.PSIMajorShift, ShouldEqual, 0.25)
		})

		Convey("Then the scenario weights blend to one", func() {
			var sum float64
			for _, w := range cfg.ScenarioWeights {
				sum += w
			}
			So(sum, ShouldAlmostEqual, 1.0, 1e-12)
		})

		Convey("Then every product has a calibrated LGD segment", func() {
			for _, name := range []string{"Mortgage", "HELOC", "AutoLoan", "PersonalLoan", "CreditCard", "Other"} {
				seg, ok := cfg.LGD.Segments[name]
				So(ok, ShouldBeTrue)
				So(seg.LongRunAverage, ShouldBeBetween, 0, 1)
			}
		})

		Convey("Then the defaults pass validation", func() {
			So(cfg.Validate(), ShouldBeNil)
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given a default config", t, func() {
		cfg := config.New()

		Convey("When the scenario weights drift off one", func() {
			cfg.ScenarioWeights["Baseline"] = 0.70

			Convey("Then validation rejects it", func() {
				So(cfg.Validate(), ShouldWrap, config.ErrInvalidConfig)
			})
		})

		Convey("When the PD floor crosses the cap", func() {
			cfg.PD.Floor = 0.9999
			cfg.PD.Cap = 0.0001

			Convey("Then validation rejects it", func() {
				So(cfg.Validate(), ShouldNotBeNil)
			})
		})

		Convey("When the worker count is zero", func() {
			cfg.WorkerCount = 0

			Convey("Then validation rejects it", func() {
				So(cfg.Validate(), ShouldWrap, config.ErrInvalidConfig)
			})
		})
	})
}

func TestLoad(t *testing.T) {
	Convey("Given the loader", t, func() {
		Convey("When no file or env overrides exist", func() {
			t.Setenv("ECL_CONFIG", "")

			cfg, err := config.Load()
			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":9080")
		})

		Convey("When a YAML file overrides a knob", func() {
			dir := t.TempDir()
			path := filepath.Join(dir, "ecl.yaml")
			So(os.WriteFile(path, []byte("addr: \":7070\"\nworker_count: 3\n"), 0o600), ShouldBeNil)
			t.Setenv("ECL_CONFIG", path)

			cfg, err := config.Load()
			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":7070")
			So(cfg.WorkerCount, ShouldEqual, 3)

			Convey("Then untouched sections keep their defaults", func() {
				So(cfg.PD.LongRunAverage, ShouldEqual, 0.05)
			})
		})

		Convey("When the environment overrides the file", func() {
			t.Setenv("ECL_CONFIG", "")
			t.Setenv("ECL_LOG_LEVEL", "debug")

			cfg, err := config.Load()
			So(err, ShouldBeNil)
			So(cfg.LogLevel, ShouldEqual, "debug")
		})

		Convey("When the file carries an invalid value", func() {
			dir := t.TempDir()
			path := filepath.Join(dir, "ecl.yaml")
			So(os.WriteFile(path, []byte("worker_count: -4\n"), 0o600), ShouldBeNil)
			t.Setenv("ECL_CONFIG", path)

			_, err := config.Load()
			So(err, ShouldNotBeNil)
		})
	})
}
