// Package logging wires go.uber.org/zap the way the teacher's config names it:
// one structured logger per process, tagged with the worker's role and id.
package logging

import (
	"go.uber.org/zap"
)

// New builds a process-wide logger for the given environment ("production" or
// anything else falls back to a human-readable development encoder), tagged
// with component and worker_id fields every subsequent log line carries.
func New(env, component, workerID string) (*zap.Logger, error) {
	var base *zap.Logger
	var err error
	if env == "production" {
		base, err = zap.NewProduction()
	} else {
		base, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}
	return base.With(
		zap.String("component", component),
		zap.String("worker_id", workerID),
	), nil
}
