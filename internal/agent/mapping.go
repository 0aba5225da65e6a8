package agent

import (
	"strings"

	"github.com/facebuddy/facebuddy/internal/ai"
	"github.com/facebuddy/facebuddy/internal/constants"
	"github.com/facebuddy/facebuddy/internal/facematch"
	"github.com/facebuddy/facebuddy/internal/logger"
)

// ToAction maps a model's function call onto an Action. Every input yields an
// Action; names outside the known set become NoAction and are logged.
func ToAction(call *ai.FunctionCall, profile facematch.Profile) Action {
	if call == nil {
		return NoAction{}
	}

	switch call.FunctionName {
	case ai.FunctionSendTransaction:
		return toSendPayment(call.Args, profile)
	case ai.FunctionConnectOnLinkedIn:
		return toConnectSocial(PlatformLinkedIn, profile.LinkedIn, call.Args)
	case ai.FunctionConnectOnTelegram:
		return toConnectSocial(PlatformTelegram, profile.Telegram, call.Args)
	case ai.FunctionConnectOnTwitter:
		return toConnectSocial(PlatformTwitter, profile.Twitter, call.Args)
	default:
		logger.Warning("unrecognized intent",
			logger.Options{Key: "function", Data: call.FunctionName},
		)
		return NoAction{Reason: "unrecognized function " + call.FunctionName}
	}
}

func toSendPayment(args ai.Args, profile facematch.Profile) Action {
	amount := strings.TrimSpace(args.String("amount"))
	if _, err := parseAmount(amount); err != nil {
		logger.Warning("payment intent without a usable amount",
			logger.Options{Key: "amount", Data: amount},
		)
		return NoAction{Reason: "payment amount missing or invalid"}
	}

	asset := args.String("ticker")
	if asset == "" {
		asset = profile.PreferredToken
	}
	if asset == "" {
		asset = constants.DefaultPaymentAsset
	}

	return SendPayment{
		Amount:    strings.TrimSpace(strings.TrimPrefix(amount, "$")),
		Recipient: profile.Name,
		Asset:     strings.ToUpper(strings.TrimSpace(asset)),
	}
}

func toConnectSocial(platform, profileHandle string, args ai.Args) Action {
	handle := cleanHandle(profileHandle)
	if handle == "" {
		handle = cleanHandle(args.String("username"))
	}
	if handle == "" {
		return NoAction{Reason: "no " + platform + " handle on profile"}
	}
	return ConnectSocial{
		Platform: platform,
		Handle:   handle,
		URL:      socialURL(platform, handle),
	}
}

func cleanHandle(h string) string {
	return strings.TrimPrefix(strings.TrimSpace(h), "@")
}
