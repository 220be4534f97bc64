package user

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/eirki/trek-api/internal/tracker"
)

func RegisterRoutes(r fiber.Router, svc *Service, frontendURL string, authMiddleware fiber.Handler) {
	r.Get("/me", authMiddleware, func(c *fiber.Ctx) error {
		profile, err := svc.Me(c.Context(), c.Locals("user_id").(string))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(profile)
	})

	r.Get("/trackers", authMiddleware, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"trackers": svc.trackers.Names()})
	})

	r.Put("/me/tracker", authMiddleware, func(c *fiber.Ctx) error {
		var req struct {
			Tracker string `json:"tracker"`
		}
		if err := c.BodyParser(&req); err != nil || req.Tracker == "" {
			return fiber.NewError(fiber.StatusBadRequest, "tracker required")
		}
		if err := svc.SetActiveTracker(c.Context(), c.Locals("user_id").(string), req.Tracker); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/trackers/:name/authorize", authMiddleware, func(c *fiber.Ctx) error {
		url, err := svc.LinkURL(c.Context(), c.Locals("user_id").(string), c.Params("name"))
		if errors.Is(err, tracker.ErrUnknownTracker) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Redirect(url, fiber.StatusFound)
	})

	// Oauth providers redirect here, the state ties the request back to a
	// logged in user so no bearer token is required.
	r.Get("/trackers/redirect/:name", func(c *fiber.Ctx) error {
		code := c.Query("code")
		state := c.Query("state")
		if code == "" || state == "" {
			return fiber.NewError(fiber.StatusBadRequest, "code and state required")
		}
		err := svc.HandleCallback(c.Context(), c.Params("name"), code, state)
		if errors.Is(err, tracker.ErrUnknownTracker) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		if errors.Is(err, ErrLinkExpired) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Redirect(frontendURL, fiber.StatusFound)
	})
}
