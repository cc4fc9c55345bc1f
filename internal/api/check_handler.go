package api

import (
	"github.com/gofiber/fiber/v2"
)

// IndexStatuser reports the state of the documentation index.
type IndexStatuser interface {
	Status() IndexStatus
}

type CheckHandler struct {
	index IndexStatuser
}

func NewCheckHandler(index IndexStatuser) *CheckHandler {
	return &CheckHandler{index: index}
}

func (h CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"result": "ok"})
}

func (h CheckHandler) HandleIndex(c *fiber.Ctx) error {
	if h.index == nil {
		return c.JSON(IndexStatus{})
	}
	return c.JSON(h.index.Status())
}
