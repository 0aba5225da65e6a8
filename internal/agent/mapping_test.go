package agent

import (
	"testing"

	"github.com/facebuddy/facebuddy/internal/ai"
	"github.com/facebuddy/facebuddy/internal/facematch"
)

func TestToAction(t *testing.T) {
	profile := facematch.Profile{
		Name:           "0xbob",
		LinkedIn:       "bob-builder",
		Telegram:       "@bobtg",
		PreferredToken: "eth",
	}

	tests := []struct {
		name    string
		call    *ai.FunctionCall
		profile facematch.Profile
		want    Action
	}{
		{
			name: "nil call",
			call: nil,
			want: NoAction{},
		},
		{
			name:    "payment uses preferred token",
			call:    &ai.FunctionCall{FunctionName: "sendTransaction", Args: ai.Args{"amount": 12.5}},
			profile: profile,
			want:    SendPayment{Amount: "12.5", Recipient: "0xbob", Asset: "ETH"},
		},
		{
			name:    "payment ticker overrides profile",
			call:    &ai.FunctionCall{FunctionName: "sendTransaction", Args: ai.Args{"amount": "$3", "ticker": "usdc"}},
			profile: profile,
			want:    SendPayment{Amount: "3", Recipient: "0xbob", Asset: "USDC"},
		},
		{
			name:    "payment amount with spaced dollar sign",
			call:    &ai.FunctionCall{FunctionName: "sendTransaction", Args: ai.Args{"amount": "$ 12"}},
			profile: profile,
			want:    SendPayment{Amount: "12", Recipient: "0xbob", Asset: "ETH"},
		},
		{
			name:    "payment defaults to USDC",
			call:    &ai.FunctionCall{FunctionName: "sendTransaction", Args: ai.Args{"amount": "1"}},
			profile: facematch.Profile{Name: "0xcarol"},
			want:    SendPayment{Amount: "1", Recipient: "0xcarol", Asset: "USDC"},
		},
		{
			name:    "payment ignores recipient argument",
			call:    &ai.FunctionCall{FunctionName: "sendTransaction", Args: ai.Args{"amount": "1", "recipientAddress": "0xmallory"}},
			profile: facematch.Profile{Name: "0xcarol"},
			want:    SendPayment{Amount: "1", Recipient: "0xcarol", Asset: "USDC"},
		},
		{
			name:    "payment without amount",
			call:    &ai.FunctionCall{FunctionName: "sendTransaction", Args: ai.Args{}},
			profile: profile,
			want:    NoAction{Reason: "payment amount missing or invalid"},
		},
		{
			name:    "linkedin",
			call:    &ai.FunctionCall{FunctionName: "connectOnLinkedin"},
			profile: profile,
			want:    ConnectSocial{Platform: "linkedin", Handle: "bob-builder", URL: "https://linkedin.com/in/bob-builder"},
		},
		{
			name:    "telegram strips at sign",
			call:    &ai.FunctionCall{FunctionName: "connectOnTelegram", Args: ai.Args{"username": "ignored"}},
			profile: profile,
			want:    ConnectSocial{Platform: "telegram", Handle: "bobtg", URL: "https://t.me/bobtg"},
		},
		{
			name:    "twitter falls back to argument",
			call:    &ai.FunctionCall{FunctionName: "connectOnTwitter", Args: ai.Args{"username": "bobtweets"}},
			profile: profile,
			want:    ConnectSocial{Platform: "twitter", Handle: "bobtweets", URL: "https://twitter.com/bobtweets"},
		},
		{
			name:    "social without any handle",
			call:    &ai.FunctionCall{FunctionName: "connectOnTwitter"},
			profile: facematch.Profile{Name: "0xcarol"},
			want:    NoAction{Reason: "no twitter handle on profile"},
		},
		{
			name:    "unknown function",
			call:    &ai.FunctionCall{FunctionName: "doSomethingUnknown"},
			profile: profile,
			want:    NoAction{Reason: "unrecognized function doSomethingUnknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToAction(tt.call, tt.profile)
			if got != tt.want {
				t.Errorf("ToAction() = %#v, want %#v", got, tt.want)
			}
		})
	}
}
