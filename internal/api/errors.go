package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

func ErrorHandler(c *fiber.Ctx, err error) error {
	var apiErr Error
	if errors.As(err, &apiErr) {
		return c.Status(apiErr.Code).JSON(apiErr)
	}
	var valErr ValidationError
	if errors.As(err, &valErr) {
		return c.Status(valErr.Status).JSON(valErr)
	}

	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	apiErr = NewError(code, err.Error())
	slog.Error("request failed", "path", c.Path(), "code", apiErr.Code, "error", apiErr.Message)
	return c.Status(apiErr.Code).JSON(apiErr)
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
	Note    string `json:"note,omitempty"`
}

// Error implements the Error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

// ValidationError reports request fields that failed validation.
type ValidationError struct {
	Status  int               `json:"status"`
	Message string            `json:"error"`
	Errors  map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return e.Message
}

func NewValidationError(message string, errors map[string]string) ValidationError {
	return ValidationError{
		Status:  fiber.StatusBadRequest,
		Message: message,
		Errors:  errors,
	}
}

func ErrMissingQuestion() ValidationError {
	return NewValidationError("Missing required field: question", map[string]string{"question": "required"})
}

func ErrInvalidField(field, reason string) ValidationError {
	return NewValidationError("invalid field: "+field, map[string]string{field: reason})
}

func ErrAssistantDisabled() Error {
	return Error{
		Code:    fiber.StatusServiceUnavailable,
		Message: "AI Assistant is disabled",
	}
}

func ErrDependenciesMissing(hint string) Error {
	return Error{
		Code:    fiber.StatusServiceUnavailable,
		Message: "AI Assistant dependencies not installed",
		Note:    hint,
	}
}

func ErrIndexNotFound() Error {
	return Error{
		Code:    fiber.StatusNotFound,
		Message: "Documentation index not found",
		Note:    "Run: build-ai-index",
	}
}

func ErrSearchFailed(err error) Error {
	return Error{
		Code:    fiber.StatusInternalServerError,
		Message: "Search failed: " + err.Error(),
	}
}
