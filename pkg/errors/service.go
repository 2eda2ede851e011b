// pkg/errors/service.go
package errors

// Service error codes
const (
	// ServiceErrAlreadyRunning indicates Run was called while running
	ServiceErrAlreadyRunning = "SERVICE_ALREADY_RUNNING"
	// ServiceErrAlreadyCancelled indicates Run was called after the token fired
	ServiceErrAlreadyCancelled = "SERVICE_ALREADY_CANCELLED"
	// ServiceErrNotStarted indicates Cancel was called before Run
	ServiceErrNotStarted = "SERVICE_NOT_STARTED"
	// ServiceErrDuplicateChild indicates the same child was registered twice
	ServiceErrDuplicateChild = "SERVICE_DUPLICATE_CHILD"
	// ServiceErrInvalidChild indicates a nil child or a service registered as its own child
	ServiceErrInvalidChild = "SERVICE_INVALID_CHILD"
	// ServiceErrCleaningUp indicates a child was registered after cleanup began
	ServiceErrCleaningUp = "SERVICE_CLEANING_UP"
	// ServiceErrGraceExceeded indicates cleanup did not finish within the grace period
	ServiceErrGraceExceeded = "SERVICE_GRACE_EXCEEDED"
	// ServiceErrPanic indicates a work or teardown routine panicked
	ServiceErrPanic = "SERVICE_PANIC"
	// ServiceErrDuplicateName indicates a registry name collision
	ServiceErrDuplicateName = "SERVICE_DUPLICATE_NAME"
	// ServiceErrUnknown indicates a registry lookup miss
	ServiceErrUnknown = "SERVICE_UNKNOWN"
)

// Service domain name
const ServiceDomain = "service"

// Service operations
const (
	OpRun      = "Run"
	OpRunChild = "RunChild"
	OpCancel   = "Cancel"
	OpCleanup  = "Cleanup"
	OpRegister = "Register"
	OpLookup   = "Get"
)

// ServiceField is the Fields key naming the service involved.
const ServiceField = "service"

// NewContractViolation creates a contract violation for the named service.
func NewContractViolation(code, operation, service, message string) error {
	return &Error{
		Domain:    ServiceDomain,
		Code:      code,
		Operation: operation,
		Message:   message,
		Original:  ErrContractViolation,
		Fields:    map[string]interface{}{ServiceField: service},
	}
}

// NewGraceExceededError reports that cancel gave up waiting for cleanup.
func NewGraceExceededError(service string, grace interface{}) error {
	return &Error{
		Domain:    ServiceDomain,
		Code:      ServiceErrGraceExceeded,
		Operation: OpCancel,
		Message:   Sprintf("%s did not finish cleanup within %v", service, grace),
		Original:  ErrTimeout,
		Fields:    map[string]interface{}{ServiceField: service},
	}
}

// NewPanicError converts a recovered panic value into a fault carrying the
// goroutine stack.
func NewPanicError(service, operation string, value interface{}, stack string) error {
	return &Error{
		Domain:    ServiceDomain,
		Code:      ServiceErrPanic,
		Operation: operation,
		Message:   Sprintf("panic: %v", value),
		Original:  ErrFault,
		Fields:    map[string]interface{}{ServiceField: service},
		Stack:     stack,
	}
}

// ServiceErrorf creates a service error around one of the error kinds.
func ServiceErrorf(kind error, code string, format string, args ...interface{}) error {
	return &Error{
		Domain:   ServiceDomain,
		Code:     code,
		Message:  Sprintf(format, args...),
		Original: kind,
	}
}

// IsContractViolation reports whether err signals a caller bug.
func IsContractViolation(err error) bool {
	return Is(err, ErrContractViolation)
}
