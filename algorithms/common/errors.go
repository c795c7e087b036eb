package common

import "fmt"

// ConfigError reports an invalid construction-time parameter: a bad window
// name, a non-positive frame/hop/transform size, or a conflicting resolution
// set. It is fatal and never recovered automatically.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string {
	return "config: " + e.msg
}

// Configf builds a *ConfigError with fmt-style formatting
func Configf(format string, args ...any) error {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// ShapeError reports a call-time input shape problem: a signal shorter than
// one analysis frame, or mismatched batch/channel dimensions. Callers decide
// whether to skip the offending batch.
type ShapeError struct {
	msg string
}

func (e *ShapeError) Error() string {
	return "shape: " + e.msg
}

// Shapef builds a *ShapeError with fmt-style formatting
func Shapef(format string, args ...any) error {
	return &ShapeError{msg: fmt.Sprintf(format, args...)}
}
