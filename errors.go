package convoke

import (
	"errors"
	"fmt"
)

// Error codes for specific failure types
const (
	ErrCodeLLMProvider   = "LLM_PROVIDER_ERROR"
	ErrCodeToolExecution = "TOOL_EXECUTION_ERROR"
	ErrCodeToolNotFound  = "TOOL_NOT_FOUND"
	ErrCodeInvalidCall   = "INVALID_TOOL_CALL"
	ErrCodeTimeout       = "CONVERSATION_TIMEOUT"
	ErrCodeContextSize   = "CONTEXT_TOO_LARGE"
	ErrCodePlanning      = "PLANNING_FAILED"
	ErrCodeUserInput     = "USER_INTERVENTION_REQUIRED"
	ErrCodeStorage       = "STORAGE_ERROR"
	ErrCodeSerialization = "SERIALIZATION_ERROR"
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeCancelled     = "EXECUTION_CANCELLED"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// ConvokeError is a custom error type for engine specific errors.
type ConvokeError struct {
	Code    string // A machine-readable error code (e.g., ErrCodeToolNotFound)
	Message string // A human-readable message
	Stage   string // The stage where the error occurred (e.g., "planning", "execution")
	Cause   error  // The underlying error, if any
}

// Error implements the error interface.
func (e *ConvokeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Stage, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Stage, e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error, allowing for error chaining.
func (e *ConvokeError) Unwrap() error {
	return e.Cause
}

// NewError creates a new ConvokeError.
func NewError(code, stage, message string, cause error) *ConvokeError {
	return &ConvokeError{
		Code:    code,
		Stage:   stage,
		Message: message,
		Cause:   cause,
	}
}

// Specific error constructors

func NewLLMProviderError(stage string, cause error) *ConvokeError {
	return NewError(ErrCodeLLMProvider, stage, "LLM call failed", cause)
}

func NewToolNotFoundError(stage, toolName string) *ConvokeError {
	return NewError(ErrCodeToolNotFound, stage, fmt.Sprintf("tool '%s' not found", toolName), nil)
}

func NewToolExecutionError(stage, toolName string, cause error) *ConvokeError {
	return NewError(ErrCodeToolExecution, stage, fmt.Sprintf("execution failed for tool '%s'", toolName), cause)
}

func NewInvalidToolCallError(toolName string, violations []ValidationError) *ConvokeError {
	msg := fmt.Sprintf("invalid arguments for tool '%s'", toolName)
	if len(violations) > 0 {
		msg = fmt.Sprintf("%s: %s %s", msg, violations[0].Field, violations[0].Message)
	}
	return NewError(ErrCodeInvalidCall, "validation", msg, nil)
}

func NewConversationTimeoutError(stage string, cause error) *ConvokeError {
	return NewError(ErrCodeTimeout, stage, "conversation step timed out", cause)
}

func NewMaxStepsExceededError(maxSteps int) *ConvokeError {
	return NewError(ErrCodeTimeout, "conversation", fmt.Sprintf("maximum conversation steps (%d) exceeded", maxSteps), nil)
}

func NewContextTooLargeError(size, budget int) *ConvokeError {
	msg := fmt.Sprintf("context size %d exceeds budget %d after compression", size, budget)
	return NewError(ErrCodeContextSize, "context", msg, nil)
}

func NewPlanningError(message string, cause error) *ConvokeError {
	return NewError(ErrCodePlanning, "planning", message, cause)
}

func NewUserInputRequiredError(prompt string) *ConvokeError {
	return NewError(ErrCodeUserInput, "conversation", prompt, nil)
}

func NewStorageError(operation string, cause error) *ConvokeError {
	return NewError(ErrCodeStorage, "storage", fmt.Sprintf("store operation '%s' failed", operation), cause)
}

func NewSerializationError(stage, what string, cause error) *ConvokeError {
	return NewError(ErrCodeSerialization, stage, fmt.Sprintf("failed to serialize %s", what), cause)
}

func NewConfigurationError(message string, cause error) *ConvokeError {
	return NewError(ErrCodeConfiguration, "initialization", message, cause)
}

func NewCancelledError(stage string, cause error) *ConvokeError {
	msg := "execution cancelled"
	if cause != nil && cause.Error() != "" && cause.Error() != "context canceled" { // Add more detail if cause isn't just context.Canceled
		msg = fmt.Sprintf("execution cancelled: %v", cause)
	}
	return NewError(ErrCodeCancelled, stage, msg, cause)
}

func NewInternalError(stage, message string, cause error) *ConvokeError {
	return NewError(ErrCodeInternal, stage, message, cause)
}

// ErrorCode extracts the machine-readable code from err, or ErrCodeInternal
// when err is not a ConvokeError.
func ErrorCode(err error) string {
	var ce *ConvokeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeInternal
}

// IsTimeout reports whether err carries the conversation timeout code.
func IsTimeout(err error) bool {
	return ErrorCode(err) == ErrCodeTimeout
}

// IsStorage reports whether err carries the storage code.
func IsStorage(err error) bool {
	return ErrorCode(err) == ErrCodeStorage
}
