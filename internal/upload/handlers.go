package upload

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
)

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Get("/*", func(c *fiber.Ctx) error {
		data, err := svc.Fetch(c.Context(), c.Params("*"))
		if err == pgx.ErrNoRows {
			return fiber.NewError(fiber.StatusNotFound, "object not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		c.Set(fiber.HeaderContentType, "image/jpeg")
		return c.Send(data)
	})
}
