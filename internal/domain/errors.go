package domain

import "fmt"

// ContractViolationError reports a programming-contract violation such as an
// unknown message variant or a malformed tool-call shape. It is fatal and
// never recovered.
type ContractViolationError struct {
	Detail string
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("contract violation: %s", e.Detail)
}

// UnsupportedModelError reports that a model family has no known
// token-accounting convention. It is fatal for token counting only and does
// not abort an in-flight generation.
type UnsupportedModelError struct {
	Model string
}

func (e *UnsupportedModelError) Error() string {
	return fmt.Sprintf("no token accounting convention for model %s", e.Model)
}

// InvalidRequestError reports a caller-visible configuration error, such as
// a malformed JSON schema for structured output. It is raised before any
// network call is made.
type InvalidRequestError struct {
	Reason string
	Cause  error
}

func (e *InvalidRequestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid request: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("invalid request: %s", e.Reason)
}

func (e *InvalidRequestError) Unwrap() error { return e.Cause }
