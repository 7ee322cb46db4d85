package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/gigbridge/backend/internal/models"
	"github.com/gigbridge/backend/internal/money"
)

// withdrawPeek is the subset of the withdrawal body the middleware inspects.
type withdrawPeek struct {
	Amount  decimal.Decimal `json:"amount"`
	Channel string          `json:"channel"`
}

// allowedChannels is the set of payout channels the platform supports.
var allowedChannels = map[string]bool{
	models.ChannelBankTransfer:    true,
	models.ChannelInstantTransfer: true,
	models.ChannelMobileWallet:    true,
}

// WithdrawalCheck rejects out-of-range withdrawal requests before the
// handler runs. Reads the body to extract amount and channel, then replaces
// r.Body so the handler can re-read it.
func WithdrawalCheck() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IdentityFromCtx(r.Context()) == nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			bodyBytes, err := io.ReadAll(r.Body)
			r.Body.Close()
			if err != nil {
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var peek withdrawPeek
			if err := json.Unmarshal(bodyBytes, &peek); err != nil {
				http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
				return
			}
			if !allowedChannels[peek.Channel] {
				http.Error(w, fmt.Sprintf(`{"error":"channel %q is not supported"}`, peek.Channel), http.StatusBadRequest)
				return
			}
			if peek.Amount.LessThan(money.MinWithdrawal) {
				http.Error(w, fmt.Sprintf(`{"error":"amount %s below minimum %s"}`, peek.Amount, money.MinWithdrawal), http.StatusBadRequest)
				return
			}
			if peek.Amount.GreaterThan(money.MaxWithdrawal) {
				http.Error(w, fmt.Sprintf(`{"error":"amount %s above maximum %s"}`, peek.Amount, money.MaxWithdrawal), http.StatusBadRequest)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
