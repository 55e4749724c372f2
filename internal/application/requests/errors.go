package requests

import "agrihub-backend/internal/domain"

var (
	ErrRequestNotFound    = domain.NewError(domain.ErrNotFound, "Request not found")
	ErrListingNotFound    = domain.NewError(domain.ErrNotFound, "Listing not found")
	ErrAlreadyResolved    = domain.NewError(domain.ErrInvalidState, "Request has already been resolved")
	ErrListingUnavailable = domain.NewError(domain.ErrConflict, "Listing is no longer available")
	ErrSelfRequest        = domain.NewError(domain.ErrConflict, "You cannot request your own listing")
	ErrDuplicatePending   = domain.NewError(domain.ErrConflict, "You already have a pending request for this listing")
	ErrNotOwner           = domain.NewError(domain.ErrForbidden, "Only the listing owner can resolve its requests")
	ErrNotVisible         = domain.NewError(domain.ErrForbidden, "Request belongs to another user")
	ErrInvalidDecision    = domain.NewError(domain.ErrValidation, "Decision must be approve or reject")
	ErrInvalidPhone       = domain.NewError(domain.ErrValidation, "Invalid phone number")
	ErrMissingRequester   = domain.NewError(domain.ErrValidation, "Requester is required")
)
