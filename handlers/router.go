package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/ferreirogomes/nftmarket/auth"
	"github.com/ferreirogomes/nftmarket/metrics"
	"github.com/ferreirogomes/nftmarket/models"
	"github.com/ferreirogomes/nftmarket/services"
	"github.com/ferreirogomes/nftmarket/storage"
)

// Services bundles what the HTTP layer calls into.
type Services struct {
	Accounts   *services.AccountService
	Catalog    *services.CatalogService
	Categories *services.CategoryService
	Settlement *services.SettlementService
	Funding    *services.FundingService
	Settings   *services.SettingsService
	Ledger     *services.LedgerService
	Newsletter *services.NewsletterService
	Admin      *services.AdminService
}

type RouterConfig struct {
	Services Services
	Issuer   *auth.Issuer
	Store    storage.Store
	// Limiter is optional.
	Limiter *RateLimiter
	Log     logrus.FieldLogger
}

// NewRouter wires every route of the marketplace API.
func NewRouter(cfg RouterConfig) http.Handler {
	svc := cfg.Services
	authH := NewAuthHandler(svc.Accounts)
	userH := NewUserHandler(svc.Accounts, svc.Catalog, svc.Ledger)
	nftH := NewNFTHandler(svc.Catalog, svc.Settlement)
	catH := NewCategoryHandler(svc.Categories)
	fundH := NewFundingHandler(svc.Funding)
	setH := NewSettingsHandler(svc.Settings)
	newsH := NewNewsletterHandler(svc.Newsletter)
	adminH := NewAdminHandler(svc.Admin, svc.Ledger)

	authn := Authenticate(cfg.Issuer)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Log))
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)

	r.Get("/healthz", healthz(cfg.Store))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if cfg.Limiter != nil {
			r.Use(cfg.Limiter.Handler)
		}

		r.Post("/auth/register", authH.Register)
		r.Post("/auth/login", authH.Login)
		r.Get("/categories", catH.List)
		r.Get("/settings/public", setH.Public)
		r.Post("/newsletter/subscribe", newsH.Subscribe)
		r.Post("/newsletter/unsubscribe", newsH.Unsubscribe)

		r.Route("/nfts", func(r chi.Router) {
			r.Get("/", nftH.Marketplace)
			r.Get("/{id}", nftH.Get)
			r.Group(func(r chi.Router) {
				r.Use(authn)
				r.Post("/", nftH.Mint)
				r.Patch("/{id}/listing", nftH.Relist)
				r.Post("/{id}/purchase", nftH.Purchase)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(authn)
			r.Get("/me", userH.Me)
			r.Patch("/me", userH.UpdateMe)
			r.Get("/me/nfts", userH.MyNFTs)
			r.Get("/me/transactions", userH.MyTransactions)
			r.Post("/deposits", fundH.RequestDeposit)
			r.Get("/deposits", fundH.MyDeposits)
			r.Post("/withdrawals", fundH.RequestWithdrawal)
			r.Get("/withdrawals", fundH.MyWithdrawals)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authn, RequireRole(models.RoleAdmin, svc.Accounts))

			r.Get("/users", userH.List)
			r.Get("/users/{id}", userH.Get)
			r.Put("/users/{id}/role", userH.SetRole)

			r.Get("/nfts", nftH.AdminList)
			r.Post("/nfts/{id}/review", nftH.Review)
			r.Put("/nfts/{id}/active", nftH.SetActive)

			r.Get("/categories", catH.List)
			r.Post("/categories", catH.Create)
			r.Put("/categories/{id}", catH.Update)
			r.Delete("/categories/{id}", catH.Delete)

			r.Get("/deposits", fundH.Deposits)
			r.Post("/deposits/{id}/review", fundH.ReviewDeposit)
			r.Get("/withdrawals", fundH.Withdrawals)
			r.Post("/withdrawals/{id}/review", fundH.ReviewWithdrawal)

			r.Get("/settings", setH.Get)
			r.Put("/settings", setH.Update)

			r.Get("/transactions", adminH.Transactions)
			r.Get("/transactions/export", adminH.Export)
			r.Get("/stats", adminH.Stats)

			r.Get("/newsletter/subscribers", newsH.Subscribers)
			r.Post("/newsletter/broadcast", newsH.Broadcast)
		})
	})

	return r
}

func healthz(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			loggerFrom(r).WithError(err).Warn("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
