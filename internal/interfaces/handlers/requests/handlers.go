package requests

import (
	"bufio"
	"context"
	"fmt"
	"time"

	reqsvc "agrihub-backend/internal/application/requests"
	"agrihub-backend/internal/domain"
	"agrihub-backend/internal/infrastructure/events"
	"agrihub-backend/internal/middleware"
	"agrihub-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

const defaultKeepAlive = 25 * time.Second

// Feed is the change feed a client can follow.
type Feed interface {
	Subscribe(ctx context.Context) (<-chan events.ChangeEvent, func(), error)
}

type Handlers struct {
	Service   *reqsvc.Service
	Feed      Feed
	KeepAlive time.Duration
}

type createRequestBody struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Location string `json:"location"`
	Message  string `json:"message"`
}

// CreateRequest POST /api/v1/listings/:id/requests
func (h *Handlers) CreateRequest(c *fiber.Ctx) error {
	actor, _ := middleware.ActorID(c)
	listingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid listing id")
	}
	var body createRequestBody
	if err := c.BodyParser(&body); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req, err := h.Service.CreateRequest(c.UserContext(), actor, listingID, reqsvc.RequesterInfo(body))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Request submitted successfully", req, nil)
}

// GetOwnerRequests GET /api/v1/requests/owner?listing_id=
func (h *Handlers) GetOwnerRequests(c *fiber.Ctx) error {
	actor, _ := middleware.ActorID(c)
	var listingID *uuid.UUID
	if s := c.Query("listing_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return response.BadRequest(c, "Invalid listing_id")
		}
		listingID = &id
	}
	out, err := h.Service.ListRequestsForOwner(c.UserContext(), actor, listingID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Requests fetched successfully", out, nil)
}

// GetMyRequests GET /api/v1/requests/mine
func (h *Handlers) GetMyRequests(c *fiber.Ctx) error {
	actor, _ := middleware.ActorID(c)
	out, err := h.Service.ListRequestsForRequester(c.UserContext(), actor)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Requests fetched successfully", out, nil)
}

// GetRequest GET /api/v1/requests/:id
func (h *Handlers) GetRequest(c *fiber.Ctx) error {
	actor, _ := middleware.ActorID(c)
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid request id")
	}
	req, err := h.Service.GetRequest(c.UserContext(), actor, id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Request fetched successfully", req, nil)
}

// Approve POST /api/v1/requests/:id/approve
func (h *Handlers) Approve(c *fiber.Ctx) error {
	return h.resolve(c, domain.DecisionApprove, "Request approved")
}

// Reject POST /api/v1/requests/:id/reject
func (h *Handlers) Reject(c *fiber.Ctx) error {
	return h.resolve(c, domain.DecisionReject, "Request rejected")
}

func (h *Handlers) resolve(c *fiber.Ctx, d domain.Decision, msg string) error {
	actor, _ := middleware.ActorID(c)
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid request id")
	}
	req, err := h.Service.ResolveRequest(c.UserContext(), actor, id, d)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, msg, req, nil)
}

// Stream GET /api/v1/requests/feed: server-sent events for changes that
// concern the caller as owner or requester.
func (h *Handlers) Stream(c *fiber.Ctx) error {
	if h.Feed == nil {
		return response.Error(c, "Change feed is not configured", fiber.StatusServiceUnavailable, nil)
	}
	actor, _ := middleware.ActorID(c)

	// The stream outlives the handler, so it gets its own context.
	ctx, cancel := context.WithCancel(context.Background())
	ch, release, err := h.Feed.Subscribe(ctx)
	if err != nil {
		cancel()
		return response.FromError(c, domain.StoreError(err))
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	keepAlive := h.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer release()
		n := streamEvents(w, ch, actor, keepAlive)
		log.Info().Str("user_id", actor.String()).Int("sent", n).Msg("change feed closed")
	}))
	return nil
}

// streamEvents writes events concerning actor until ch closes or a write
// fails. It returns the number of events sent.
func streamEvents(w *bufio.Writer, ch <-chan events.ChangeEvent, actor uuid.UUID, keepAlive time.Duration) int {
	sent := 0
	fmt.Fprint(w, ": connected\n\n")
	if err := w.Flush(); err != nil {
		return sent
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return sent
			}
			if !e.Concerns(actor) {
				continue
			}
			b, err := events.Encode(e)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, b)
			if err := w.Flush(); err != nil {
				return sent
			}
			sent++
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			if err := w.Flush(); err != nil {
				return sent
			}
		}
	}
}
