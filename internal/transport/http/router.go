package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/medconnect-auth/internal/application/channel"
	"github.com/medconnect-auth/internal/application/devbypass"
	"github.com/medconnect-auth/internal/application/domains"
	"github.com/medconnect-auth/internal/application/identity"
	"github.com/medconnect-auth/internal/application/orchestrator"
	"github.com/medconnect-auth/internal/application/verification"
	"github.com/medconnect-auth/internal/config"
	"github.com/medconnect-auth/internal/transport/http/handler"
	appmiddleware "github.com/medconnect-auth/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	flows := deps.FlowStore
	if flows == nil {
		flows = orchestrator.NewMemoryStore(cfg.FlowTTL, clock)
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", appmiddleware.DevModeHeader},
		ExposedHeaders:   []string{appmiddleware.DevModeBannerHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 5 requests/second, burst of 10 per IP on endpoints that send codes or check secrets.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	validator := domains.NewValidator(deps.AllowedDomains, cfg.PrivilegedEmailDomains, deps.DomainPolicy)
	identitySvc := identity.NewService(identity.ServiceDeps{
		AccountRepo:     deps.AccountRepo,
		SessionRepo:     deps.SessionRepo,
		ProfileRepo:     deps.ProfileRepo,
		JWTProvider:     deps.JWTProvider,
		Google:          deps.Google,
		Domains:         validator,
		RefreshTokenDur: cfg.RefreshTokenExpiry(),
	})
	gateway := verification.NewService(verification.ServiceDeps{
		ChallengeRepo: deps.ChallengeRepo,
		SMSSender:     deps.SMSSender,
		Mailer:        deps.Mailer,
		WhatsApp:      deps.WhatsApp,
		EmailOTP:      deps.EmailOTP,
		TestNumbers:   cfg.TestPhoneNumbers,
		Clock:         clock,
		CodeTTL:       cfg.OTPTTL,
		MaxAttempts:   cfg.OTPMaxAttempts,
	})
	flowSvc := orchestrator.NewService(orchestrator.ServiceDeps{
		FlowStore:       flows,
		Gateway:         gateway,
		Identity:        identitySvc,
		Domains:         validator,
		Selector:        channel.NewSelector(cfg.SMSOnlyCallingCodes, cfg.WhatsAppCallingCodes),
		Clock:           clock,
		CooldownSeconds: cfg.ResendCooldownSeconds,
		SwitchDelay:     cfg.ViewSwitchDelay,
	})

	healthH := handler.NewHealthHandler()
	flowH := handler.NewFlowHandler(flowSvc)
	domainH := handler.NewDomainHandler(validator)
	sessionH := handler.NewSessionHandler(identitySvc)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Get("/auth/domains/check", domainH.Check)
		r.With(sensitiveRL.Limit).Post("/auth/google", sessionH.Google)
		r.Post("/sessions/refresh", sessionH.Refresh)

		r.Route("/auth/flows", func(r chi.Router) {
			r.Post("/", flowH.Start)
			r.Get("/{id}", flowH.Get)
			r.Put("/{id}/method", flowH.SelectMethod)
			r.Put("/{id}/view", flowH.SelectView)
			r.Put("/{id}/account-type", flowH.ChooseAccountType)
			r.Put("/{id}/phone", flowH.SetPhone)
			r.Put("/{id}/channel", flowH.SetChannel)
			r.Post("/{id}/back", flowH.Back)

			r.With(sensitiveRL.Limit).Post("/{id}/credentials", flowH.SubmitCredentials)
			r.With(sensitiveRL.Limit).Post("/{id}/resend", flowH.Resend)
			r.With(sensitiveRL.Limit).Post("/{id}/verify", flowH.Verify)
		})

		if cfg.DevModeEnabled {
			devH := handler.NewDevHandler(devbypass.NewService(devbypass.ServiceDeps{
				Identity: identitySvc,
				Domain:   cfg.DevAccountDomain,
				Password: cfg.DevAccountPassword,
			}))
			r.With(appmiddleware.DevMode, sensitiveRL.Limit).Post("/dev/login", devH.Login)
		}

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Auth(deps.JWTProvider))

			r.Get("/sessions", sessionH.GetCurrent)
			r.Post("/sessions/logout", sessionH.Logout)
		})
	})

	return r
}
