package transform

import "fmt"

// ConfigurationError reports a malformed rule source. It is fatal for the
// engine being loaded.
type ConfigurationError struct {
	Source string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("rule source %s: %v", e.Source, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErr(source, format string, args ...any) error {
	return &ConfigurationError{Source: source, Err: fmt.Errorf(format, args...)}
}
