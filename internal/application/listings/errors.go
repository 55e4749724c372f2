package listings

import "agrihub-backend/internal/domain"

var (
	ErrListingNotFound = domain.NewError(domain.ErrNotFound, "Listing not found")
	ErrNotOwner        = domain.NewError(domain.ErrForbidden, "Only the listing owner can change this listing")
	ErrActiveRequests  = domain.NewError(domain.ErrConflict, "Listing has pending or approved requests")
	ErrInvalidCategory = domain.NewError(domain.ErrValidation, "Category must be equipment, land or seed")
	ErrInvalidKind     = domain.NewError(domain.ErrValidation, "Kind must be rent or sale")
	ErrInvalidStatus   = domain.NewError(domain.ErrValidation, "Status must be Available or NotAvailable")
	ErrInvalidPrice    = domain.NewError(domain.ErrValidation, "Invalid price")
	ErrNoChanges       = domain.NewError(domain.ErrValidation, "No valid changes provided")
)
