package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const chatModel = openai.ChatModelGPT4_1Mini

// OpenAIInferer asks an OpenAI chat model to pick one of the agent functions.
type OpenAIInferer struct {
	client *openai.Client
	usage  usageTracker
}

func NewOpenAIInferer(apiKey string, opts ...option.RequestOption) *OpenAIInferer {
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &OpenAIInferer{client: &client}
}

func (p *OpenAIInferer) Name() string {
	return chatModel
}

func (p *OpenAIInferer) GetUsage() Usage {
	return p.usage.GetUsage()
}

func (p *OpenAIInferer) Infer(ctx context.Context, prompt string) (*Response, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: chatModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(agentSystemPrompt),
			openai.UserMessage(prompt),
		},
		Tools:     openAITools(),
		MaxTokens: openai.Int(300),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &StatusError{Provider: "openai", StatusCode: apiErr.StatusCode, Body: apiErr.Message}
		}
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}

	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		p.usage.trackUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from OpenAI")
	}

	msg := resp.Choices[0].Message
	out := &Response{Content: Content{Text: msg.Content}}
	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0].Function
		args := Args{}
		if call.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
				return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
			}
		}
		out.Content.FunctionCall = &FunctionCall{FunctionName: call.Name, Args: args}
	}

	return out, nil
}

func openAITools() []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, 0, len(agentFunctions))
	for _, f := range agentFunctions {
		tools = append(tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        f.Name,
				Description: openai.String(f.Description),
				Parameters:  openai.FunctionParameters(f.jsonSchema()),
			},
		})
	}
	return tools
}
