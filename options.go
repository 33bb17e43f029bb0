// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package taskloop

import (
	"errors"
	"time"

	"github.com/joeycumines/logiface"
)

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	logger                *logiface.Logger[logiface.Event]
	exceptionHandler      ExceptionHandler
	slowCallbackThreshold time.Duration
	debug                 bool
	metricsEnabled        bool
}

// --- Loop Options ---

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithLogger sets the logger used for loop diagnostics: slow callbacks,
// panics, poll failures, and the default exception handler. Without one,
// diagnostics that must not be lost fall back to the standard library's log
// package and everything else is dropped.
//
// See the zaplog subpackage for a zap-backed implementation.
func WithLogger(logger *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithDebug enables debug instrumentation from creation: origin capture on
// handles and futures, slow-callback reporting, and goroutine identity
// checks on scheduling calls. Equivalent to SetDebug(true) on the new loop.
func WithDebug(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.debug = enabled
		return nil
	}}
}

// WithSlowCallbackThreshold sets the execution duration above which a
// callback is reported as slow when debug mode is enabled. The default is
// [DefaultSlowCallbackThreshold].
func WithSlowCallbackThreshold(d time.Duration) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if d <= 0 {
			return errors.New("taskloop: slow callback threshold must be positive")
		}
		opts.slowCallbackThreshold = d
		return nil
	}}
}

// WithExceptionHandler sets the handler invoked for callback panics, task
// completion conflicts, and unretrieved future errors. The default handler
// logs the failure and the loop continues running.
func WithExceptionHandler(h ExceptionHandler) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.exceptionHandler = h
		return nil
	}}
}

// WithMetrics enables runtime metrics collection on the Loop.
// When enabled, metrics can be accessed via Loop.Metrics().
// This adds minimal overhead (e.g., record latency after each callback,
// update queue depths). For zero-allocation hot paths, leave metrics
// disabled in production.
func WithMetrics(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		slowCallbackThreshold: DefaultSlowCallbackThreshold, // default
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
