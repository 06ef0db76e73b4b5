package harvester

import "fmt"

// ConfigurationError reports a setting the harvester cannot run without.
// It is returned before any remote call is made.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}
