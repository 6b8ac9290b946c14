// Package ledger resolves citizen identifiers to registered contact details
// through a read-only call on the ration distribution contract.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
	"github.com/tidwall/gjson"

	"github.com/grainlly/fraudline/internal/config"
)

// Sentinel errors for the two rejection cases callers distinguish
var (
	ErrConsumerNotFound = errors.New("consumer not found for this aadhaar")
	ErrInvalidMobile    = errors.New("valid mobile number not found for this aadhaar")
)

const (
	consumerMethodSignature = "getConsumerByAadhaar(uint256)"
	minMobileDigits         = 10
	dialingPrefix           = "+91"
)

// Consumer is a registered ration consumer's contact record
type Consumer struct {
	Name   string
	Mobile string
}

// Resolver looks up consumers on the ledger contract via JSON-RPC eth_call
type Resolver struct {
	config   config.LedgerConfig
	logger   *slog.Logger
	client   *resty.Client
	cache    *cache.Cache
	selector []byte
}

// NewResolver creates a new ledger resolver
func NewResolver(cfg config.LedgerConfig, logger *slog.Logger) *Resolver {
	return &Resolver{
		config:   cfg,
		logger:   logger,
		client:   resty.New().SetTimeout(cfg.Timeout),
		cache:    cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		selector: methodSelector(consumerMethodSignature),
	}
}

// Resolve maps a citizen identifier to a display name and a normalized mobile
// number. Unknown identifiers return ErrConsumerNotFound; registered
// identifiers without a dialable mobile return ErrInvalidMobile.
func (r *Resolver) Resolve(ctx context.Context, aadhaar string) (*Consumer, error) {
	if cached, found := r.cache.Get(aadhaar); found {
		consumer := cached.(Consumer)
		return &consumer, nil
	}

	arg, ok := new(big.Int).SetString(aadhaar, 10)
	if !ok || arg.Sign() < 0 {
		return nil, fmt.Errorf("%w: non-numeric identifier", ErrConsumerNotFound)
	}

	name, mobile, err := r.call(ctx, arg)
	if err != nil {
		return nil, err
	}

	if len(onlyDigits(mobile)) < minMobileDigits {
		return nil, ErrInvalidMobile
	}

	consumer := Consumer{
		Name:   name,
		Mobile: normalizeMobile(mobile),
	}
	r.cache.Set(aadhaar, consumer, cache.DefaultExpiration)

	r.logger.Info("Consumer resolved", "aadhaar", aadhaar, "name", name)
	return &consumer, nil
}

func (r *Resolver) call(ctx context.Context, arg *big.Int) (name, mobile string, err error) {
	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_call",
		"params": []interface{}{
			map[string]string{
				"to":   r.config.ContractAddress,
				"data": encodeCallData(r.selector, arg),
			},
			"latest",
		},
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(r.config.RPCURL)
	if err != nil {
		r.logger.Error("Ledger RPC request failed", "error", err)
		return "", "", fmt.Errorf("ledger rpc request failed: %w", err)
	}
	if resp.StatusCode() >= 400 {
		r.logger.Error("Ledger RPC returned error status", "status", resp.StatusCode())
		return "", "", fmt.Errorf("ledger rpc returned status %d", resp.StatusCode())
	}

	payload := resp.Body()

	if rpcErr := gjson.GetBytes(payload, "error.message"); rpcErr.Exists() {
		// Reverts for unknown identifiers surface as RPC errors
		if strings.Contains(rpcErr.String(), "Consumer not found") {
			return "", "", ErrConsumerNotFound
		}
		r.logger.Error("Ledger RPC error", "message", rpcErr.String())
		return "", "", fmt.Errorf("ledger rpc error: %s", rpcErr.String())
	}

	result := gjson.GetBytes(payload, "result").String()
	data, err := decodeHexResult(result)
	if err != nil {
		return "", "", fmt.Errorf("decoding ledger response: %w", err)
	}
	if len(data) == 0 {
		return "", "", ErrConsumerNotFound
	}

	name, mobile, err = decodeConsumerReturn(data)
	if err != nil {
		return "", "", fmt.Errorf("decoding consumer record: %w", err)
	}

	return name, mobile, nil
}

// normalizeMobile canonicalizes a mobile number to the +91 dialing prefix
func normalizeMobile(mobile string) string {
	trimmed := strings.TrimSpace(mobile)
	if strings.HasPrefix(trimmed, dialingPrefix) {
		return trimmed
	}
	return dialingPrefix + trimmed
}

func onlyDigits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
