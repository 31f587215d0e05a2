package deblur

import "fmt"

// ConfigurationError means the parameter set can never work (unknown
// algorithm, impossible combination). Raised before any tree walk
// starts; never recovered.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s", e.Reason)
}

// ResourceError means an externally supplied input (a top-level kernel
// image) is missing or unusable. Raised before propagation; never
// recovered.
type ResourceError struct {
	Reason string
	Err    error
}

func (e *ResourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resource: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("resource: %s", e.Reason)
}

func (e *ResourceError) Unwrap() error { return e.Err }
