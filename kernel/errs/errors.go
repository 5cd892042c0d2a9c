// Package errs defines the kernel's single typed error, used for every
// fault the frame engine and its collaborating stores raise.
package errs

import "fmt"

// Error codes, grouped by the fault kinds of the frame-engine design.
const (
	// State-invariant violations (fatal to the frame, §7 kind 2).
	CodeDuplicateFacet = "DUPLICATE_FACET"
	CodeUnknownFacet   = "UNKNOWN_FACET"
	CodeSequenceGap    = "SEQUENCE_GAP"
	CodeInvalidDelta   = "INVALID_DELTA"

	// Processor faults (captured, non-fatal, §7 kind 1).
	CodeReceptorFault   = "RECEPTOR_FAULT"
	CodeTransformFault  = "TRANSFORM_FAULT"
	CodeEffectorFault   = "EFFECTOR_FAULT"
	CodeMaintainerFault = "MAINTAINER_FAULT"

	// Dependency injection (fatal at boot or dynamic load, §7 kind 3).
	CodeMissingReference = "MISSING_REFERENCE"
	CodeMissingExternal  = "MISSING_EXTERNAL"

	// Persistence (§7 kinds 4 and 5).
	CodePersistWriteFailed = "PERSIST_WRITE_FAILED"
	CodePersistLoadFailed  = "PERSIST_LOAD_FAILED"

	// Phase 2 convergence (§7 kind 6).
	CodeTransformDivergence = "TRANSFORM_DIVERGENCE"

	// Agent/LLM collaborator errors (§7 kind 7).
	CodeAgentError = "AGENT_ERROR"

	// Tree invariants.
	CodeElementNotFound   = "ELEMENT_NOT_FOUND"
	CodeComponentConflict = "COMPONENT_CONFLICT"
)

// KernelError is a production-grade error type carrying a machine-readable
// code, free-form context, and an optional wrapped cause.
type KernelError struct {
	Code    string
	Message string
	Context map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *KernelError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *KernelError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value pair and returns the same error for
// chaining.
func (e *KernelError) WithContext(key string, value any) *KernelError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// New creates a KernelError with no cause.
func New(code, message string) *KernelError {
	return &KernelError{Code: code, Message: message, Context: make(map[string]any)}
}

// Wrap creates a KernelError that carries an underlying cause.
func Wrap(code, message string, cause error) *KernelError {
	return &KernelError{Code: code, Message: message, Cause: cause, Context: make(map[string]any)}
}

// Common constructors, one per frequently-raised fault.

func DuplicateFacet(id string) *KernelError {
	return New(CodeDuplicateFacet, "facet id already present").WithContext("facet_id", id)
}

func UnknownFacet(id string, op string) *KernelError {
	return New(CodeUnknownFacet, "facet id not found").
		WithContext("facet_id", id).
		WithContext("operation", op)
}

func SequenceGap(expected, got uint64) *KernelError {
	return New(CodeSequenceGap, "sequence is not gap-free").
		WithContext("expected", expected).
		WithContext("got", got)
}

func ProcessorFault(role string, name string, cause error) *KernelError {
	code := map[string]string{
		"receptor":   CodeReceptorFault,
		"transform":  CodeTransformFault,
		"effector":   CodeEffectorFault,
		"maintainer": CodeMaintainerFault,
	}[role]
	if code == "" {
		code = CodeReceptorFault
	}
	return Wrap(code, role+" raised an error", cause).WithContext("component", name)
}

func MissingReference(key string) *KernelError {
	return New(CodeMissingReference, "required reference not registered").WithContext("key", key)
}

func MissingExternal(path string) *KernelError {
	return New(CodeMissingExternal, "required external resource not registered").WithContext("path", path)
}

func PersistWriteFailed(path string, cause error) *KernelError {
	return Wrap(CodePersistWriteFailed, "failed to write persistence file", cause).WithContext("path", path)
}

func PersistLoadFailed(path string, cause error) *KernelError {
	return Wrap(CodePersistLoadFailed, "failed to load persisted state", cause).WithContext("path", path)
}

func TransformDivergence(iterations int) *KernelError {
	return New(CodeTransformDivergence, "phase 2 did not reach a fixed point").WithContext("iterations", iterations)
}

func AgentError(agentID string, cause error) *KernelError {
	return Wrap(CodeAgentError, "agent raised an error", cause).WithContext("agent_id", agentID)
}

func ElementNotFound(id string) *KernelError {
	return New(CodeElementNotFound, "element not found").WithContext("element_id", id)
}
