package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/davidterpay/transfer-contract/internal/events"
	"github.com/davidterpay/transfer-contract/internal/ledger"
	"github.com/davidterpay/transfer-contract/internal/security"
	"github.com/davidterpay/transfer-contract/pkg/audit"
)

type Auditor interface {
	Append(rec audit.Record) *audit.LogEntry
}

type Dependencies struct {
	Logger *slog.Logger

	LedgerReader interface {
		Owner(ctx context.Context) (string, error)
		FeePercent(ctx context.Context) (uint8, error)
		Balance(ctx context.Context, account, denom string) (uint64, error)
	}
	LedgerWriter interface {
		Initialize(ctx context.Context, owner string, feePercent uint8) error
		SplitDeposit(ctx context.Context, req ledger.DepositRequest) error
		Withdraw(ctx context.Context, caller string, amount uint64, denom string) (*ledger.TransferInstruction, error)
		WithdrawAll(ctx context.Context, caller, denom string) (*ledger.TransferInstruction, error)
	}

	Publisher    events.Publisher
	Auditor      Auditor
	RateLimiter  *security.RedisTokenBucket
	MaxBodyBytes int64
}

func NewRouter(deps Dependencies) (http.Handler, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	configureV, err := security.NewJSONSchemaValidator(configureSchema)
	if err != nil {
		return nil, err
	}
	depositV, err := security.NewJSONSchemaValidator(depositSchema)
	if err != nil {
		return nil, err
	}
	withdrawV, err := security.NewJSONSchemaValidator(withdrawSchema)
	if err != nil {
		return nil, err
	}
	withdrawAllV, err := security.NewJSONSchemaValidator(withdrawAllSchema)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(security.CorrelationID)
	r.Use(RequestLogger(deps.Logger))
	r.Use(security.BodySizeLimit(deps.MaxBodyBytes))
	if deps.RateLimiter != nil {
		r.Use(security.RateLimitMiddleware(deps.RateLimiter, rateLimitKeyByCaller))
	}
	if deps.Auditor != nil {
		r.Use(AuditMiddleware(deps.Auditor))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/v1/ledger", func(r chi.Router) {
		r.Get("/config/owner", handleGetOwner(deps))
		r.Get("/config/fee", handleGetFeePercent(deps))
		r.Get("/balances/{account}/{denom}", handleGetBalance(deps))

		r.Group(func(r chi.Router) {
			r.Use(security.RequireCaller)

			r.With(configureV.Middleware).Post("/config", handleConfigure(deps))
			r.With(depositV.Middleware).Post("/deposits", handleDeposit(deps))
			r.With(withdrawV.Middleware).Post("/withdrawals", handleWithdraw(deps))
			r.With(withdrawAllV.Middleware).Post("/withdrawals/all", handleWithdrawAll(deps))
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusNotFound, "not_found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	return r, nil
}

// rateLimitKeyByCaller buckets by the declared account when one is present so
// a noisy caller cannot starve others behind the same NAT.
func rateLimitKeyByCaller(r *http.Request) string {
	if id := r.Header.Get(security.AccountIDHeader); security.ValidAccountID(id) {
		return "acct:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	return "ip:" + host
}
