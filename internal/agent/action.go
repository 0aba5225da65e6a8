// Package agent turns a spoken request about a recognised person into one of
// a closed set of actions by way of an external inference backend.
package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/facebuddy/facebuddy/internal/config"
)

// Action kinds.
const (
	KindSendPayment   = "send_payment"
	KindConnectSocial = "connect_social"
	KindNoAction      = "no_action"
)

// Social platforms.
const (
	PlatformLinkedIn = "linkedin"
	PlatformTelegram = "telegram"
	PlatformTwitter  = "twitter"
)

var (
	ErrInvalidAmount     = errors.New("invalid payment amount")
	ErrUnknownAsset      = errors.New("unknown settlement asset")
	ErrPriceFeedRequired = errors.New("asset is not fiat-pegged, a price feed is required")
)

// Action is what the execution layer should do next. The set of
// implementations is closed: SendPayment, ConnectSocial and NoAction.
type Action interface {
	Kind() string
	Describe() string
	isAction()
}

// SendPayment asks the wallet layer to pay the recognised person.
type SendPayment struct {
	Amount    string `json:"amount"` // USD decimal string
	Recipient string `json:"recipient"`
	Asset     string `json:"asset"`
}

func (SendPayment) Kind() string { return KindSendPayment }
func (SendPayment) isAction() {}

func (a SendPayment) Describe() string {
	return fmt.Sprintf("Ready to send %s %s to %s", a.Amount, a.Asset, a.Recipient)
}

func (a SendPayment) MarshalJSON() ([]byte, error) {
	type plain SendPayment
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{KindSendPayment, plain(a)})
}

// BaseUnits converts the USD amount into integer base units of asset.
// Fractions below the asset's precision are truncated. Assets that are not
// fiat-pegged need a price feed and return ErrPriceFeedRequired.
func (a SendPayment) BaseUnits(asset config.Asset) (*big.Int, error) {
	if !asset.FiatPegged {
		return nil, fmt.Errorf("%w: %s", ErrPriceFeedRequired, a.Asset)
	}

	amount, err := parseAmount(a.Amount)
	if err != nil {
		return nil, err
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(asset.Decimals)), nil)
	amount.Mul(amount, new(big.Rat).SetInt(scale))
	return new(big.Int).Quo(amount.Num(), amount.Denom()), nil
}

// ConnectSocial asks the client to open the person's profile on a platform.
type ConnectSocial struct {
	Platform string `json:"platform"`
	Handle   string `json:"handle"`
	URL      string `json:"url"`
}

func (ConnectSocial) Kind() string { return KindConnectSocial }
func (ConnectSocial) isAction() {}

func (a ConnectSocial) Describe() string {
	return fmt.Sprintf("Opening %s profile %s", a.Platform, a.URL)
}

func (a ConnectSocial) MarshalJSON() ([]byte, error) {
	type plain ConnectSocial
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{KindConnectSocial, plain(a)})
}

// NoAction means the agent answered without asking for anything.
type NoAction struct {
	Reason string `json:"reason,omitempty"`
}

func (NoAction) Kind() string { return KindNoAction }
func (NoAction) isAction() {}

func (a NoAction) Describe() string {
	if a.Reason == "" {
		return "No action requested"
	}
	return "No action: " + a.Reason
}

func (a NoAction) MarshalJSON() ([]byte, error) {
	type plain NoAction
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{KindNoAction, plain(a)})
}

// socialURL builds the public profile link for a handle.
func socialURL(platform, handle string) string {
	switch platform {
	case PlatformLinkedIn:
		return "https://linkedin.com/in/" + handle
	case PlatformTelegram:
		return "https://t.me/" + handle
	case PlatformTwitter:
		return "https://twitter.com/" + handle
	}
	return ""
}

// parseAmount accepts a positive decimal such as "12", "12.5" or "$12.50".
func parseAmount(s string) (*big.Rat, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	if s == "" || strings.ContainsAny(s, "eE/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok || r.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return r, nil
}

// BaseUnitsFor looks the payment asset up in cfg and converts the amount.
func (a SendPayment) BaseUnitsFor(cfg *config.Config) (*big.Int, error) {
	asset, ok := cfg.Asset(a.Asset)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, a.Asset)
	}
	return a.BaseUnits(asset)
}
