package ai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

// GeminiInferer asks a Gemini model to pick one of the agent functions.
type GeminiInferer struct {
	client *genai.Client
	usage  usageTracker
}

func NewGeminiInferer(ctx context.Context, apiKey string) (*GeminiInferer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiInferer{client: client}, nil
}

func (p *GeminiInferer) Name() string {
	return geminiModel
}

func (p *GeminiInferer) GetUsage() Usage {
	return p.usage.GetUsage()
}

func (p *GeminiInferer) Infer(ctx context.Context, prompt string) (*Response, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: agentSystemPrompt}}},
		Tools:             []*genai.Tool{{FunctionDeclarations: geminiFunctions()}},
	}

	result, err := p.client.Models.GenerateContent(ctx, geminiModel, contents, config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, &StatusError{Provider: "gemini", StatusCode: apiErr.Code, Body: apiErr.Message}
		}
		var apiErrPtr *genai.APIError
		if errors.As(err, &apiErrPtr) {
			return nil, &StatusError{Provider: "gemini", StatusCode: apiErrPtr.Code, Body: apiErrPtr.Message}
		}
		return nil, fmt.Errorf("gemini API error: %w", err)
	}

	if result.UsageMetadata != nil {
		p.usage.trackUsage(int64(result.UsageMetadata.PromptTokenCount), int64(result.UsageMetadata.CandidatesTokenCount))
	}

	out := &Response{Content: Content{Text: result.Text()}}
	if calls := result.FunctionCalls(); len(calls) > 0 {
		out.Content.FunctionCall = &FunctionCall{FunctionName: calls[0].Name, Args: Args(calls[0].Args)}
	}
	if out.Content.Text == "" && out.Content.FunctionCall == nil {
		return nil, errors.New("no response from Gemini")
	}

	return out, nil
}

func geminiFunctions() []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(agentFunctions))
	for _, f := range agentFunctions {
		props := make(map[string]*genai.Schema, len(f.Params))
		var required []string
		for _, p := range f.Params {
			props[p.Name] = &genai.Schema{Type: genai.TypeString, Description: p.Description}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        f.Name,
			Description: f.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   required,
			},
		})
	}
	return decls
}
