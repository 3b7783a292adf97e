package api

import "github.com/gofiber/fiber/v2"

// Error codes surfaced to operators.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeQueueError      = "QUEUE_ERROR"
	CodeServiceError    = "SERVICE_ERROR"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func respondError(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func validationError(c *fiber.Ctx, message string, details interface{}) error {
	return respondError(c, fiber.StatusBadRequest, CodeValidationError, message, details)
}

func queueError(c *fiber.Ctx, message string) error {
	return respondError(c, fiber.StatusBadGateway, CodeQueueError, message, nil)
}

func serviceError(c *fiber.Ctx, message string) error {
	return respondError(c, fiber.StatusInternalServerError, CodeServiceError, message, nil)
}
