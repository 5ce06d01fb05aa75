package scenario

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by the index-set packages wraps exactly
// one of these, so callers can classify failures with errors.Is.
var (
	// ErrConfiguration reports invalid scalar input (branching, stages, duration,
	// period, offset, table shape).
	ErrConfiguration = errors.New("invalid configuration")
	// ErrConsistency reports a structural invariant that does not hold.
	ErrConsistency = errors.New("consistency violation")
	// ErrProbability reports leaf probabilities that do not form a distribution.
	ErrProbability = errors.New("probability violation")
	// ErrResourceBound reports a build that would exceed the configured limits.
	ErrResourceBound = errors.New("resource bound exceeded")
)

// ConfigurationError describes one rejected input value.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s=%v: %s", ErrConfiguration, e.Field, e.Value, e.Reason)
}

// Unwrap returns ErrConfiguration.
func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// ConsistencyError names the invariant that failed and the grid point where it
// was detected.
type ConsistencyError struct {
	Invariant string
	Branch    int
	Time      int
	Detail    string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s: [%s] at (branch=%d, time=%d): %s",
		ErrConsistency, e.Invariant, e.Branch, e.Time, e.Detail)
}

// Unwrap returns ErrConsistency.
func (e *ConsistencyError) Unwrap() error { return ErrConsistency }

// ProbabilityError reports a probability mass outside tolerance.
type ProbabilityError struct {
	Sum       float64
	Tolerance float64
	Detail    string
}

func (e *ProbabilityError) Error() string {
	return fmt.Sprintf("%s: sum=%.12g tolerance=%g: %s", ErrProbability, e.Sum, e.Tolerance, e.Detail)
}

// Unwrap returns ErrProbability.
func (e *ProbabilityError) Unwrap() error { return ErrProbability }

// ResourceError reports a requested size above its limit. Requested is
// preformatted because the true value may not fit in an int.
type ResourceError struct {
	Resource  string
	Requested string
	Limit     string
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s: %s requested %s, limit %s", ErrResourceBound, e.Resource, e.Requested, e.Limit)
}

// Unwrap returns ErrResourceBound.
func (e *ResourceError) Unwrap() error { return ErrResourceBound }

func configErr(field string, value any, reason string) error {
	return &ConfigurationError{Field: field, Value: value, Reason: reason}
}

func consistencyErr(invariant string, branch, time int, format string, args ...any) error {
	return &ConsistencyError{
		Invariant: invariant,
		Branch:    branch,
		Time:      time,
		Detail:    fmt.Sprintf(format, args...),
	}
}
