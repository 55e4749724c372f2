package router

import (
	"context"
	"errors"
	"net/http"

	authsvc "agrihub-backend/internal/application/auth"
	emailsvc "agrihub-backend/internal/application/emails"
	healthsvc "agrihub-backend/internal/application/health"
	lesvc "agrihub-backend/internal/application/listingevents"
	listsvc "agrihub-backend/internal/application/listings"
	paysvc "agrihub-backend/internal/application/payments"
	reqsvc "agrihub-backend/internal/application/requests"
	uploadsvc "agrihub-backend/internal/application/uploads"
	"agrihub-backend/internal/config"
	"agrihub-backend/internal/constants"
	"agrihub-backend/internal/domain"
	"agrihub-backend/internal/infrastructure/cache"
	"agrihub-backend/internal/infrastructure/events"
	"agrihub-backend/internal/infrastructure/ratelimit"
	authhandler "agrihub-backend/internal/interfaces/handlers/auth"
	healthhandler "agrihub-backend/internal/interfaces/handlers/health"
	lehandler "agrihub-backend/internal/interfaces/handlers/listingevents"
	listhandler "agrihub-backend/internal/interfaces/handlers/listings"
	payhandler "agrihub-backend/internal/interfaces/handlers/payments"
	reqhandler "agrihub-backend/internal/interfaces/handlers/requests"
	uploadhandler "agrihub-backend/internal/interfaces/handlers/uploads"
	"agrihub-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the connections the app is built on. NATS is optional and only
// reported on by the health endpoint; Publisher defaults to the Redis feed.
type Deps struct {
	DB        *gorm.DB
	Rdb       *redis.Client
	NATS      healthsvc.NATSStatus
	Publisher events.Publisher
}

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) PingContext(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CreateApp builds the Fiber app with global middleware and every route.
func CreateApp(cfg *config.Config, deps Deps) (*fiber.App, error) {
	if deps.DB == nil || deps.Rdb == nil {
		return nil, errors.New("router: database and redis are required")
	}
	db, rdb := deps.DB, deps.Rdb

	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))

	// Stripe needs the untouched body, so the webhook sits ahead of the session.
	payments := &paysvc.Service{
		DB:            db,
		Creator:       &paysvc.RealStripeCreator{SecretKey: cfg.StripeSecretKey},
		Currency:      cfg.PaymentCurrency,
		WebhookSecret: cfg.StripeWebhookSecret,
	}
	ph := &payhandler.Handlers{Service: payments}
	app.Post("/api/v1/stripe/webhook", ph.Webhook)

	sessionCfg := middleware.SessionConfig{
		Secret:            cfg.SessionSecret,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.IsProduction(),
	}
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())
	app.Use(middleware.HealthMarker(rdb))
	app.Use(middleware.Session(rdb, sessionCfg))
	if cfg.SupabaseJWTSecret != "" {
		verifier, err := authsvc.NewTokenVerifier(cfg.SupabaseJWTSecret)
		if err != nil {
			return nil, err
		}
		app.Use(middleware.BearerAuth(verifier))
	}

	hh := &healthhandler.Handlers{
		Deps: healthsvc.Deps{
			Rdb:  rdb,
			DB:   &gormDBPinger{db: db},
			NATS: deps.NATS,
		},
		ServiceName:    cfg.AppName,
		HealthAdminKey: cfg.HealthAdminKey,
	}
	if cfg.SupabaseURL != "" {
		hh.Deps.Probes = map[string]string{"storage": cfg.SupabaseURL + "/storage/v1/version"}
	}
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)
	app.Get("/health/reset", hh.Reset)

	var mailer emailsvc.Sender
	if cfg.SendinblueAPIKey != "" {
		mailer = &emailsvc.BrevoClient{APIKey: cfg.SendinblueAPIKey, MailFrom: cfg.MailFrom}
	}

	feed := events.NewRedisFeed(rdb, cfg.ChangeFeedChannel)
	publisher := deps.Publisher
	if publisher == nil {
		publisher = feed
	}
	listingCache := cache.NewRedisCache(rdb, "agrihub")

	api := app.Group("/api/v1")

	ah := &authhandler.Handlers{
		UserFinder: &authsvc.GormUserFinder{DB: db},
		DB:         db,
		Rdb:        rdb,
		Mailer:     mailer,
		Config:     sessionCfg,
	}
	authGroup := api.Group("/auth")
	authGroup.Post("/register", ah.Register)
	authGroup.Post("/login", ah.Login)
	authGroup.Get("/me", ah.Me)
	authGroup.Delete("/logout", ah.Logout)

	guarded := make([]domain.ListingCategory, 0, len(cfg.DeleteGuardCategories))
	for _, c := range cfg.DeleteGuardCategories {
		guarded = append(guarded, domain.ListingCategory(c))
	}
	listingEvents := &lesvc.Service{DB: db}
	lh := &listhandler.Handlers{
		Service: &listsvc.Service{
			DB:                db,
			Cache:             listingCache,
			CacheTTL:          cfg.ListingCacheTTL,
			Events:            publisher,
			GuardedCategories: guarded,
		},
		Events: listingEvents,
	}

	requests := &reqsvc.Service{
		DB: db,
		Policy: reqsvc.Policy{
			AutoRejectOnApprove:    cfg.AutoRejectOnApprove,
			RejectSelfRequests:     cfg.RejectSelfRequests,
			RejectDuplicatePending: cfg.RejectDuplicatePending,
		},
		Events: publisher,
		Cache:  listingCache,
	}
	rh := &reqhandler.Handlers{Service: requests, Feed: feed}
	limiter, err := ratelimit.NewFixedWindowLimiter(rdb, "", cfg.RequestRateLimit, cfg.RequestRateWindow)
	if err != nil {
		return nil, err
	}

	auth := middleware.RequireAuth()
	manage := middleware.AuthorizePermission(constants.ManageListings)

	lg := api.Group("/listings", auth)
	lg.Post("/", manage, lh.CreateListing)
	lg.Get("/", lh.GetListings)
	lg.Get("/mine", lh.GetMyListings)
	lg.Get("/:id", lh.GetListing)
	lg.Put("/:id", manage, lh.EditListing)
	lg.Delete("/:id", manage, lh.DeleteListing)
	lg.Get("/:id/events", lh.GetListingEvents)
	lg.Post("/:id/requests",
		middleware.AuthorizePermission(constants.RequestListings),
		middleware.RateLimit(limiter, "requests"),
		rh.CreateRequest)

	rg := api.Group("/requests", auth)
	rg.Get("/owner", rh.GetOwnerRequests)
	rg.Get("/mine", rh.GetMyRequests)
	rg.Get("/feed", rh.Stream)
	rg.Get("/:id", rh.GetRequest)
	rg.Post("/:id/approve", manage, rh.Approve)
	rg.Post("/:id/reject", manage, rh.Reject)

	leh := &lehandler.Handlers{Service: listingEvents}
	api.Get("/listing-events", auth, middleware.AuthorizePermission(constants.ViewAuditLog), leh.GetAll)

	api.Post("/payments/create-intent", auth, ph.CreateIntent)

	uph := &uploadhandler.Handlers{Service: &uploadsvc.Service{
		Client:      &uploadsvc.HTTPClient{BaseURL: cfg.SupabaseURL, SecretKey: cfg.SupabaseSecretKey},
		SupabaseURL: cfg.SupabaseURL,
	}}
	api.Post("/uploads/listing-image", auth, uph.UploadListingImage)

	return app, nil
}

// Handler adapts the app for net/http hosts.
func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
