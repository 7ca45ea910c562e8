package tools

import (
	"errors"
	"fmt"
)

var (
	// ErrToolNotFound is returned when a requested tool is not registered.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolAlreadyExists is returned when a tool name is registered twice.
	ErrToolAlreadyExists = errors.New("tool already exists")

	// ErrInvalidArgs is returned when tool arguments are invalid or malformed.
	ErrInvalidArgs = errors.New("invalid tool arguments")
)

// ToolNotFoundError names the missing tool.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool not found: %s", e.Name)
}

// Is allows errors.Is to match against ErrToolNotFound.
func (e *ToolNotFoundError) Is(target error) bool {
	return target == ErrToolNotFound
}

func (e *ToolNotFoundError) Unwrap() error {
	return ErrToolNotFound
}

// ToolAlreadyExistsError names the duplicate tool.
type ToolAlreadyExistsError struct {
	Name string
}

func (e *ToolAlreadyExistsError) Error() string {
	return fmt.Sprintf("tool already exists: %s", e.Name)
}

// Is allows errors.Is to match against ErrToolAlreadyExists.
func (e *ToolAlreadyExistsError) Is(target error) bool {
	return target == ErrToolAlreadyExists
}

func (e *ToolAlreadyExistsError) Unwrap() error {
	return ErrToolAlreadyExists
}

// InvalidArgsError describes rejected arguments.
type InvalidArgsError struct {
	Tool    string
	Message string
	Cause   error
}

func (e *InvalidArgsError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid arguments for tool %s: %s: %v", e.Tool, e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid arguments for tool %s: %s", e.Tool, e.Message)
}

// Is allows errors.Is to match against ErrInvalidArgs.
func (e *InvalidArgsError) Is(target error) bool {
	return target == ErrInvalidArgs
}

func (e *InvalidArgsError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return ErrInvalidArgs
}
