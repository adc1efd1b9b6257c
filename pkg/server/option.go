package server

import (
	"go.uber.org/zap"

	"github.com/snapsync/snap-prune/pkg/pruner"
)

type Option func(s *Server) error

// WithAddr returns an Option which set the server listening address.
func WithAddr(addr string) Option {
	return func(s *Server) error {
		s.Addr = addr
		return nil
	}
}

// WithRunner returns an Option which set the pruning runner the agent drives.
func WithRunner(r *pruner.Runner) Option {
	return func(s *Server) error {
		s.runner = r
		return nil
	}
}

// WithSchedule returns an Option which set the cron schedule for automatic runs.
func WithSchedule(spec string) Option {
	return func(s *Server) error {
		s.schedule = spec
		return nil
	}
}

// WithLogger returns an Option which set the logger for Server.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}
