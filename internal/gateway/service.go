package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gigbridge/backend/internal/models"
	"github.com/gigbridge/backend/internal/wallet"
)

var (
	// ErrIgnored means the callback was valid but reported a non-success
	// status; no balance change happens and redelivery is pointless.
	ErrIgnored = errors.New("callback reported non-success status")
	// ErrCurrencyMismatch means the callback settled in a currency the
	// platform does not hold.
	ErrCurrencyMismatch = errors.New("unsupported settlement currency")
	// ErrBadSignature means the delivery did not carry a valid HMAC for the
	// gateway's shared secret.
	ErrBadSignature = errors.New("callback signature verification failed")
)

// Callback is the confirmed-deposit notification every supported gateway
// posts. Each gateway's schema pins down its own field constraints; this
// struct is the superset the service consumes after validation.
type Callback struct {
	ReferenceID string          `json:"reference_id"`
	UserID      uuid.UUID       `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Channel     string          `json:"channel"`
	Status      string          `json:"status"`
}

// WalletTopUps is the slice of the wallet service the gateway needs.
type WalletTopUps interface {
	TopUp(ctx context.Context, in wallet.TopUpInput) (*wallet.MutationResult, error)
}

// Service turns validated gateway callbacks into wallet credits. The
// gateway's reference id keys the top-up, so redelivered webhooks replay
// instead of double-crediting. Secrets maps gateway name to the shared
// secret its deliveries must be signed with.
type Service struct {
	Validator *Validator
	Wallets   WalletTopUps
	Secrets   map[string]string
	Log       *slog.Logger
}

func NewService(v *Validator, wallets WalletTopUps, secrets map[string]string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{Validator: v, Wallets: wallets, Secrets: secrets, Log: log}
}

// ProcessCallback verifies the delivery signature, then validates, parses
// and applies one webhook delivery. signature is the hex HMAC-SHA256 of the
// raw body under the gateway's shared secret.
func (s *Service) ProcessCallback(ctx context.Context, gatewayName string, payload json.RawMessage, signature string) (*wallet.MutationResult, error) {
	if err := s.verifySignature(gatewayName, payload, signature); err != nil {
		return nil, err
	}
	if err := s.Validator.Validate(gatewayName, payload); err != nil {
		return nil, err
	}
	var cb Callback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if cb.Status != "success" {
		s.Log.Info("gateway callback ignored",
			"gateway", gatewayName, "reference_id", cb.ReferenceID, "status", cb.Status)
		return nil, ErrIgnored
	}
	if cb.Currency != models.DefaultCurrency {
		return nil, fmt.Errorf("%w: %q", ErrCurrencyMismatch, cb.Currency)
	}

	res, err := s.Wallets.TopUp(ctx, wallet.TopUpInput{
		UserID:         cb.UserID,
		Amount:         cb.Amount,
		IdempotencyKey: topUpKey(gatewayName, cb.ReferenceID),
		Gateway:        gatewayName,
		Channel:        cb.Channel,
		PaymentRef:     cb.ReferenceID,
	})
	if err != nil {
		return nil, err
	}
	if res.Replayed {
		s.Log.Info("gateway callback redelivered",
			"gateway", gatewayName, "reference_id", cb.ReferenceID)
	}
	return res, nil
}

// verifySignature compares the delivery's signature against the HMAC of the
// body. A gateway without a configured secret is rejected; an unsigned
// delivery never reaches the wallet.
func (s *Service) verifySignature(gatewayName string, payload []byte, signature string) error {
	secret, ok := s.Secrets[gatewayName]
	if !ok || secret == "" {
		return fmt.Errorf("%w: no secret configured for gateway %q", ErrBadSignature, gatewayName)
	}
	if signature == "" {
		return fmt.Errorf("%w: missing signature", ErrBadSignature)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return fmt.Errorf("%w: signature mismatch", ErrBadSignature)
	}
	return nil
}

func topUpKey(gatewayName, referenceID string) string {
	return "gw:" + gatewayName + ":" + referenceID
}
