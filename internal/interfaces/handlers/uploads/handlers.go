package uploads

import (
	"errors"

	uploadsvc "agrihub-backend/internal/application/uploads"
	"agrihub-backend/internal/domain"
	"agrihub-backend/internal/middleware"
	"agrihub-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Handlers sign direct-to-storage uploads for listing photos.
type Handlers struct {
	Service *uploadsvc.Service
}

type listingImageBody struct {
	FileName string `json:"file_name"`
}

// UploadListingImage POST /api/v1/uploads/listing-image
func (h *Handlers) UploadListingImage(c *fiber.Ctx) error {
	owner, _ := middleware.ActorID(c)
	var req listingImageBody
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "file_name is required")
	}

	res, err := h.Service.ListingImageUploadURL(c.UserContext(), owner, req.FileName)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			return response.FromError(c, err)
		case errors.Is(err, uploadsvc.ErrStorageKey):
			log.Error().Err(err).Msg("upload: storage key misconfigured")
			return response.InternalError(c)
		}
		log.Error().Err(err).Str("bucket", uploadsvc.ListingImagesBucket).Msg("upload: failed to generate signed URL")
		return response.Error(c, "Failed to generate upload URL", fiber.StatusBadGateway, nil)
	}
	return response.Success(c, "Upload URL generated", res, nil)
}
