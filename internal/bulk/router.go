package bulk

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	api := app.Group("/api/bulk", middleware...)

	api.Get("/metadata", h.Metadata)
	api.Get("/relations/:kind/options", h.RelationOptions)
	api.Delete("/session", h.EndSession)
	api.Post("/:kind/query", h.Query)
	api.Post("/:kind/preview", h.Preview)
	api.Post("/:kind/execute", h.Execute)
}

// ErrorHandler renders AppErrors with their status and hides everything else
// behind a generic 500.
func ErrorHandler(log interface{ Errorf(string, ...any) }) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var appErr *AppError
		if errors.As(err, &appErr) {
			status := appErr.Status
			if status == 0 {
				status = fiber.StatusInternalServerError
			}
			return c.Status(status).JSON(ErrorResponse{Error: appErr})
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(ErrorResponse{
				Error: NewAppError("HTTP_ERROR", fiberErr.Code, fiberErr.Message),
			})
		}

		log.Errorf("request %s %s failed: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: NewAppError("INTERNAL_ERROR", fiber.StatusInternalServerError, "Internal server error"),
		})
	}
}
