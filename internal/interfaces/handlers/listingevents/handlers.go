package listingevents

import (
	lesvc "agrihub-backend/internal/application/listingevents"
	"agrihub-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Service *lesvc.Service
}

// GetAll GET /api/v1/listing-events?limit=: audit log across all listings, newest first.
func (h *Handlers) GetAll(c *fiber.Ctx) error {
	evs, err := h.Service.ListAll(c.UserContext(), c.QueryInt("limit", 0))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Listing events fetched successfully", evs, nil)
}
