package listings

import (
	lesvc "agrihub-backend/internal/application/listingevents"
	listsvc "agrihub-backend/internal/application/listings"
	"agrihub-backend/internal/middleware"
	"agrihub-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *listsvc.Service
	Events  *lesvc.Service
}

type createListingBody struct {
	Category    string  `json:"category"`
	Kind        string  `json:"kind"`
	Title       string  `json:"title"`
	Price       float64 `json:"price"`
	Location    string  `json:"location"`
	Description string  `json:"description"`
	ImageURL    string  `json:"image_url"`
}

type editListingBody struct {
	Title       *string  `json:"title"`
	Price       *float64 `json:"price"`
	Location    *string  `json:"location"`
	Description *string  `json:"description"`
	ImageURL    *string  `json:"image_url"`
}

// CreateListing POST /api/v1/listings
func (h *Handlers) CreateListing(c *fiber.Ctx) error {
	owner, _ := middleware.ActorID(c)
	var body createListingBody
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	listing, err := h.Service.CreateListing(c.UserContext(), owner, listsvc.CreateListingInput(body))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Listing created successfully", listing, nil)
}

// GetListings GET /api/v1/listings?category=&kind=&status=&location=&limit=&offset=
func (h *Handlers) GetListings(c *fiber.Ctx) error {
	return h.list(c, nil)
}

// GetMyListings GET /api/v1/listings/mine
func (h *Handlers) GetMyListings(c *fiber.Ctx) error {
	owner, _ := middleware.ActorID(c)
	return h.list(c, &owner)
}

func (h *Handlers) list(c *fiber.Ctx, owner *uuid.UUID) error {
	f := listsvc.Filter{
		Category: c.Query("category"),
		Kind:     c.Query("kind"),
		Status:   c.Query("status"),
		Location: c.Query("location"),
		OwnerID:  owner,
		Limit:    c.QueryInt("limit", listsvc.DefaultLimit),
		Offset:   c.QueryInt("offset", 0),
	}
	f.Normalize()
	listings, total, err := h.Service.ListListings(c.UserContext(), f)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Paged(c, "Listings fetched successfully", listings, f.Limit, f.Offset, total)
}

// GetListing GET /api/v1/listings/:id
func (h *Handlers) GetListing(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid listing id")
	}
	listing, err := h.Service.GetListing(c.UserContext(), id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Listing fetched successfully", listing, nil)
}

// EditListing PUT /api/v1/listings/:id
func (h *Handlers) EditListing(c *fiber.Ctx) error {
	owner, _ := middleware.ActorID(c)
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid listing id")
	}
	var body editListingBody
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	listing, err := h.Service.EditListing(c.UserContext(), owner, listsvc.EditListingInput{
		ListingID:   id,
		Title:       body.Title,
		Price:       body.Price,
		Location:    body.Location,
		Description: body.Description,
		ImageURL:    body.ImageURL,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Listing updated successfully", listing, nil)
}

// DeleteListing DELETE /api/v1/listings/:id
func (h *Handlers) DeleteListing(c *fiber.Ctx) error {
	owner, _ := middleware.ActorID(c)
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid listing id")
	}
	if err := h.Service.DeleteListing(c.UserContext(), owner, id); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Listing deleted successfully", fiber.Map{"listing_id": id}, nil)
}

// GetListingEvents GET /api/v1/listings/:id/events: audit trail for the owner.
func (h *Handlers) GetListingEvents(c *fiber.Ctx) error {
	owner, _ := middleware.ActorID(c)
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid listing id")
	}
	evs, err := h.Events.ListForListing(c.UserContext(), owner, id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Listing events fetched successfully", evs, nil)
}
