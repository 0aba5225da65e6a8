package ai

import (
	_ "embed"
)

//go:embed prompts/agent_system.txt
var agentSystemPrompt string

// functionSpec describes one callable function in a backend-neutral way.
type functionSpec struct {
	Name        string
	Description string
	Params      []paramSpec
}

type paramSpec struct {
	Name        string
	Description string
	Required    bool
}

var agentFunctions = []functionSpec{
	{
		Name:        FunctionSendTransaction,
		Description: "Send a payment to the recognised person.",
		Params: []paramSpec{
			{Name: "amount", Description: "Amount in US dollars as a decimal number, e.g. 12.50", Required: true},
			{Name: "ticker", Description: "Token symbol to pay with, e.g. USDC"},
			{Name: "recipientAddress", Description: "Wallet address of the recipient"},
		},
	},
	{
		Name:        FunctionConnectOnLinkedIn,
		Description: "Connect with the recognised person on LinkedIn.",
		Params:      []paramSpec{{Name: "username", Description: "LinkedIn handle"}},
	},
	{
		Name:        FunctionConnectOnTelegram,
		Description: "Connect with the recognised person on Telegram.",
		Params:      []paramSpec{{Name: "username", Description: "Telegram handle"}},
	},
	{
		Name:        FunctionConnectOnTwitter,
		Description: "Follow the recognised person on Twitter.",
		Params:      []paramSpec{{Name: "username", Description: "Twitter handle"}},
	},
}

// jsonSchema renders the parameters as a JSON schema object.
func (f functionSpec) jsonSchema() map[string]any {
	props := make(map[string]any, len(f.Params))
	required := []string{}
	for _, p := range f.Params {
		props[p.Name] = map[string]any{
			"type":        "string",
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}
