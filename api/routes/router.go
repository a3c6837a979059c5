package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/payrecon-backend/api/controllers"
	"github.com/angelmondragon/payrecon-backend/api/middleware"
	"github.com/angelmondragon/payrecon-backend/internal/ledger"
	"github.com/angelmondragon/payrecon-backend/internal/payments"
	"github.com/angelmondragon/payrecon-backend/pkg/config"
	"github.com/angelmondragon/payrecon-backend/pkg/db"
	"github.com/angelmondragon/payrecon-backend/pkg/logger"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	paymentsService payments.Service,
	ledgerService ledger.Service,
) http.Handler {
	r := chi.NewRouter()

	var corsOrigins []string
	if cfg != nil {
		corsOrigins = cfg.App.CORSOrigins
	}

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(corsOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", controllers.HealthLive())
		r.Get("/ready", controllers.HealthReady(dbP, logg))
	})

	r.Route("/payments", func(r chi.Router) {
		r.Post("/", controllers.CreatePayment(paymentsService, logg))
		r.Get("/", controllers.ListPayments(paymentsService, logg))
		r.Get("/{paymentID}", controllers.GetPayment(paymentsService, logg))
	})

	r.Route("/accounts/{accountID}", func(r chi.Router) {
		r.Get("/balance", controllers.AccountBalance(ledgerService, logg))
		r.Get("/ledger", controllers.AccountLedger(ledgerService, logg))
	})

	return r
}
