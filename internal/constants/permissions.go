package constants

const (
	ManageListings  = "manage_listings"
	RequestListings = "request_listings"
	ViewAuditLog    = "view_audit_log"
)
