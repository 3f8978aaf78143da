package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/davidterpay/transfer-contract/internal/ledger"
	"github.com/davidterpay/transfer-contract/internal/security"
	"github.com/davidterpay/transfer-contract/internal/store"
)

type configureRequest struct {
	FeePercent uint8 `json:"fee_percent"`
}

type configureResponse struct {
	CorrelationID string `json:"correlation_id"`
	Owner         string `json:"owner"`
	FeePercent    uint8  `json:"fee_percent"`
}

type depositRequest struct {
	Recipient1 string        `json:"recipient1"`
	Recipient2 string        `json:"recipient2"`
	Funds      []ledger.Coin `json:"funds"`
}

type depositResponse struct {
	CorrelationID string `json:"correlation_id"`
	Success       bool   `json:"success"`
	Coins         int    `json:"coins"`
}

type withdrawRequest struct {
	Denom  string `json:"denom"`
	Amount uint64 `json:"amount"`
}

type withdrawAllRequest struct {
	Denom string `json:"denom"`
}

type withdrawResponse struct {
	CorrelationID string                      `json:"correlation_id"`
	Transfer      *ledger.TransferInstruction `json:"transfer"`
}

type ownerResponse struct {
	CorrelationID string `json:"correlation_id"`
	Owner         string `json:"owner"`
}

type feePercentResponse struct {
	CorrelationID string `json:"correlation_id"`
	FeePercent    uint8  `json:"fee_percent"`
}

type balanceResponse struct {
	CorrelationID string `json:"correlation_id"`
	Account       string `json:"account"`
	Denom         string `json:"denom"`
	Balance       uint64 `json:"balance"`
}

type insufficientBalanceResponse struct {
	CorrelationID string `json:"correlation_id"`
	Error         string `json:"error"`
	Balance       uint64 `json:"balance"`
	Requested     uint64 `json:"requested"`
}

// writeEngineError maps accounting engine failures onto the wire taxonomy.
// Conflicts with recorded state are 409s so clients can distinguish them from
// malformed input.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var feeErr *ledger.InvalidFeePercentageError
	var balErr *ledger.InsufficientBalanceError

	switch {
	case errors.As(err, &feeErr):
		security.WriteJSONError(w, r, http.StatusUnprocessableEntity, "invalid_fee_percentage")
	case errors.Is(err, ledger.ErrAlreadyConfigured):
		security.WriteJSONError(w, r, http.StatusConflict, "already_configured")
	case errors.Is(err, store.ErrNotInitialized):
		security.WriteJSONError(w, r, http.StatusConflict, "not_initialized")
	case errors.As(err, &balErr):
		writeJSON(w, r, http.StatusConflict, insufficientBalanceResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Error:         "insufficient_balance",
			Balance:       balErr.Balance,
			Requested:     balErr.Requested,
		})
	case errors.Is(err, store.ErrAmountOverflow):
		security.WriteJSONError(w, r, http.StatusConflict, "amount_overflow")
	default:
		security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
	}
}

func handleConfigure(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.LedgerWriter == nil {
			security.WriteJSONError(w, r, http.StatusServiceUnavailable, "ledger_unavailable")
			return
		}

		var req configureRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		caller := security.CallerFromContext(r.Context())
		if err := deps.LedgerWriter.Initialize(r.Context(), caller, req.FeePercent); err != nil {
			writeEngineError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusCreated, configureResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Owner:         caller,
			FeePercent:    req.FeePercent,
		})
	}
}

func handleDeposit(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.LedgerWriter == nil {
			security.WriteJSONError(w, r, http.StatusServiceUnavailable, "ledger_unavailable")
			return
		}

		var req depositRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		err := deps.LedgerWriter.SplitDeposit(r.Context(), ledger.DepositRequest{
			Sender:     security.CallerFromContext(r.Context()),
			Recipient1: req.Recipient1,
			Recipient2: req.Recipient2,
			Funds:      req.Funds,
		})
		if err != nil {
			writeEngineError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, depositResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Success:       true,
			Coins:         len(req.Funds),
		})
	}
}

func handleWithdraw(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.LedgerWriter == nil {
			security.WriteJSONError(w, r, http.StatusServiceUnavailable, "ledger_unavailable")
			return
		}

		var req withdrawRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		caller := security.CallerFromContext(r.Context())
		instr, err := deps.LedgerWriter.Withdraw(r.Context(), caller, req.Amount, req.Denom)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}

		publishTransfer(deps, r, instr)

		writeJSON(w, r, http.StatusOK, withdrawResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Transfer:      instr,
		})
	}
}

func handleWithdrawAll(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.LedgerWriter == nil {
			security.WriteJSONError(w, r, http.StatusServiceUnavailable, "ledger_unavailable")
			return
		}

		var req withdrawAllRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		caller := security.CallerFromContext(r.Context())
		instr, err := deps.LedgerWriter.WithdrawAll(r.Context(), caller, req.Denom)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}

		publishTransfer(deps, r, instr)

		writeJSON(w, r, http.StatusOK, withdrawResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Transfer:      instr,
		})
	}
}

// publishTransfer hands the instruction to the funds mover after the debit has
// committed. A publish failure is logged, not surfaced; the instruction ID in
// the response lets an operator replay it.
func publishTransfer(deps Dependencies, r *http.Request, instr *ledger.TransferInstruction) {
	if deps.Publisher == nil || instr == nil {
		return
	}
	if err := deps.Publisher.Publish(r.Context(), *instr); err != nil {
		deps.Logger.WarnContext(r.Context(), "transfer_publish_failed",
			"cid", security.CorrelationIDFromContext(r.Context()),
			"instruction_id", instr.ID,
			"error", err,
		)
	}
}

func handleGetOwner(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.LedgerReader == nil {
			security.WriteJSONError(w, r, http.StatusServiceUnavailable, "ledger_unavailable")
			return
		}

		owner, err := deps.LedgerReader.Owner(r.Context())
		if err != nil {
			writeEngineError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, ownerResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Owner:         owner,
		})
	}
}

func handleGetFeePercent(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.LedgerReader == nil {
			security.WriteJSONError(w, r, http.StatusServiceUnavailable, "ledger_unavailable")
			return
		}

		fee, err := deps.LedgerReader.FeePercent(r.Context())
		if err != nil {
			writeEngineError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, feePercentResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			FeePercent:    fee,
		})
	}
}

func handleGetBalance(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.LedgerReader == nil {
			security.WriteJSONError(w, r, http.StatusServiceUnavailable, "ledger_unavailable")
			return
		}

		account := chi.URLParam(r, "account")
		denom := chi.URLParam(r, "denom")
		if !security.ValidAccountID(account) || denom == "" {
			security.WriteJSONError(w, r, http.StatusBadRequest, "validation_error")
			return
		}

		bal, err := deps.LedgerReader.Balance(r.Context(), account, denom)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, balanceResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Account:       account,
			Denom:         denom,
			Balance:       bal,
		})
	}
}
