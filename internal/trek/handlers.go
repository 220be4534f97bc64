package trek

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req CreateTrekRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Polyline == "" {
			return fiber.NewError(fiber.StatusBadRequest, "polyline required")
		}
		trek, err := svc.CreateTrek(c.Context(), userID(c), req)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(trek)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		detail, err := svc.GetTrek(c.Context(), c.Params("id"), userID(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(detail)
	})

	r.Patch("/:id", authMiddleware, func(c *fiber.Ctx) error {
		var req EditTrekRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		trek, err := svc.EditTrek(c.Context(), c.Params("id"), userID(c), req)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(trek)
	})

	r.Put("/:id/activate", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.SetActive(c.Context(), c.Params("id"), userID(c), true); err != nil {
			return httpError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Put("/:id/deactivate", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.SetActive(c.Context(), c.Params("id"), userID(c), false); err != nil {
			return httpError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Delete("/:id", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.DeleteTrek(c.Context(), c.Params("id"), userID(c)); err != nil {
			return httpError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/:id/invite", authMiddleware, func(c *fiber.Ctx) error {
		token, err := svc.InviteToken(c.Context(), c.Params("id"), userID(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"invite_id": token})
	})

	r.Post("/join/:invite", authMiddleware, func(c *fiber.Ctx) error {
		trekID, err := svc.Join(c.Context(), c.Params("invite"), userID(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"trek_id": trekID})
	})

	r.Post("/:id/legs", authMiddleware, func(c *fiber.Ctx) error {
		var req AddLegRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Polyline == "" {
			return fiber.NewError(fiber.StatusBadRequest, "polyline required")
		}
		leg, err := svc.AddLeg(c.Context(), c.Params("id"), userID(c), req)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"leg_id": leg.ID})
	})

	r.Get("/:id/legs/:legID", authMiddleware, func(c *fiber.Ctx) error {
		detail, err := svc.GetLeg(c.Context(), c.Params("id"), c.Params("legID"), userID(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(detail)
	})
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrTrekNotFound), errors.Is(err, ErrLegNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotParticipant):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, ErrUnfinishedLeg),
		errors.Is(err, ErrNotNextAdder),
		errors.Is(err, ErrLegDisconnected),
		errors.Is(err, ErrInvalidHour),
		errors.Is(err, ErrEmptyRoute):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
