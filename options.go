package evalsession

import (
	"log/slog"

	"github.com/podhmo/evalsession/bridge"
)

// Option is a functional option for configuring a Session.
type Option func(*Session)

// WithLogger sets the logger. The default logs warnings and above to stderr.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithGenerator replaces the generator of binding declarations. It must
// produce source the session's interpreter understands.
func WithGenerator(g bridge.Generator) Option {
	return func(s *Session) {
		s.generator = g
	}
}
