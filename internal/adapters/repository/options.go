package repository

import "github.com/okian/ifrs9/pkg/logger"

// Option applies a configuration option to the SQLStore.
type Option func(*SQLStore)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *SQLStore) {
		if l != nil {
			s.logger = l
		}
	}
}
