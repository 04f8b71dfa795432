package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/eventrsvp-backend/api/controllers"
	"github.com/angelmondragon/eventrsvp-backend/api/middleware"
	"github.com/angelmondragon/eventrsvp-backend/internal/checkin"
	"github.com/angelmondragon/eventrsvp-backend/internal/credits"
	"github.com/angelmondragon/eventrsvp-backend/internal/events"
	"github.com/angelmondragon/eventrsvp-backend/internal/notifications"
	"github.com/angelmondragon/eventrsvp-backend/internal/rsvps"
	"github.com/angelmondragon/eventrsvp-backend/pkg/config"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db"
	"github.com/angelmondragon/eventrsvp-backend/pkg/db/models"
	"github.com/angelmondragon/eventrsvp-backend/pkg/enums"
	"github.com/angelmondragon/eventrsvp-backend/pkg/logger"
	"github.com/angelmondragon/eventrsvp-backend/pkg/metrics"
)

const checkInRateWindow = time.Minute

type redisStore interface {
	middleware.ResponseStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

type userDirectory interface {
	middleware.UserProvisioner
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Dependencies are the services mounted by NewRouter. Nil Redis disables
// idempotency replay and check-in throttling.
type Dependencies struct {
	DB            db.Pinger
	Redis         redisStore
	Users         userDirectory
	Events        events.Service
	RSVPs         rsvps.Service
	CheckIn       checkin.Service
	Credits       credits.Ledger
	Notifications notifications.Service
	HTTPMetrics   *metrics.HTTPMetrics
	Metrics       http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.HTTPMetrics),
		middleware.CORS(cfg.HTTP.AllowedOrigins),
	)

	organizer := middleware.RequireRole(logg, string(enums.UserRoleOrganizer), string(enums.UserRoleAdmin))
	admin := middleware.RequireRole(logg, string(enums.UserRoleAdmin))
	checkInLimit := middleware.RateLimit(
		middleware.NewRateLimitPolicy("checkin", checkInRateWindow, cfg.RSVP.CheckInRateLimit),
		deps.Redis,
		logg,
	)

	// Applied per route so the full chi pattern is resolved when it runs.
	idem := middleware.Idempotency(deps.Redis, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.ReadinessCheck{Name: "db", Target: deps.DB},
			controllers.ReadinessCheck{Name: "redis", Target: deps.Redis},
		))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Users, logg))

		r.Route("/me", func(r chi.Router) {
			r.Get("/", controllers.Me(deps.Users, logg))
			r.Get("/rsvps", controllers.ListMyRSVPs(deps.RSVPs, logg))
			r.Get("/credits", controllers.MyCredits(deps.Credits, logg))
			r.Get("/credits/transactions", controllers.MyCreditTransactions(deps.Credits, logg))
		})

		r.Route("/events", func(r chi.Router) {
			r.With(organizer, idem).Post("/", controllers.CreateEvent(deps.Events, logg))
			r.Route("/{eventId}", func(r chi.Router) {
				r.Get("/", controllers.GetEvent(deps.Events, logg))
				r.Get("/stats", controllers.EventStats(deps.Events, logg))
				r.With(organizer, idem).Patch("/capacity", controllers.UpdateEventCapacity(deps.Events, logg))
				r.With(organizer, idem).Post("/cancel", controllers.CancelEvent(deps.Events, logg))

				r.With(idem).Put("/rsvp", controllers.RespondToEvent(deps.RSVPs, logg))
				r.Get("/rsvp", controllers.GetMyRSVP(deps.RSVPs, logg))
				r.With(organizer).Get("/rsvps", controllers.ListEventRSVPs(deps.RSVPs, logg))
				r.With(organizer, idem).Delete("/rsvps/{userId}", controllers.CancelAttendeeRSVP(deps.RSVPs, logg))
			})
		})

		r.With(organizer, checkInLimit, idem).Post("/checkin", controllers.CheckIn(deps.CheckIn, logg))

		r.Route("/admin", func(r chi.Router) {
			r.Use(admin)
			r.With(idem).Post("/users/{userId}/credits", controllers.GrantCredits(deps.Credits, logg))
			r.With(idem).Put("/users/{userId}/credits", controllers.SetCredits(deps.Credits, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.With(idem).Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
			r.With(idem).Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
		})
	})

	return r
}
