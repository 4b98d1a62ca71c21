package worker

import (
	"github.com/okian/ifrs9/pkg/logger"
)

// Option applies a configuration option to the CalcWorker.
type Option func(*CalcWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *CalcWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *CalcWorker) {
		if l != nil {
			w.logger = l
		}
	}
}
