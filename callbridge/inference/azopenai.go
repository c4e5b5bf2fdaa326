package inference

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/ai/azopenai"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	ports "github.com/ZanzyTHEbar/callbridge/callbridge/pipeline/ports"
)

// AzureOptions configure the Azure OpenAI provider.
type AzureOptions struct {
	Endpoint    string
	APIKey      string
	Deployment  string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// AzureProvider sends the prompt as a chat completion request.
type AzureProvider struct {
	client *azopenai.Client
	opts   AzureOptions
}

// NewAzureProvider creates a provider with key credentials.
func NewAzureProvider(opts AzureOptions) (*AzureProvider, error) {
	if opts.Endpoint == "" || opts.APIKey == "" || opts.Deployment == "" {
		return nil, fmt.Errorf("%w: azure endpoint, api key and deployment are required", ErrProviderUnavailable)
	}
	client, err := azopenai.NewClientWithKeyCredential(opts.Endpoint, azcore.NewKeyCredential(opts.APIKey), nil)
	if err != nil {
		return nil, fmt.Errorf("creating Azure OpenAI client: %w", err)
	}
	return &AzureProvider{client: client, opts: opts}, nil
}

func (p *AzureProvider) Name() string { return "azopenai" }

func (p *AzureProvider) Complete(ctx context.Context, prompt ports.Prompt) (string, error) {
	req := azopenai.ChatCompletionsOptions{
		DeploymentName: to.Ptr(p.opts.Deployment),
		Messages:       chatMessages(prompt),
	}
	if p.opts.MaxTokens > 0 {
		req.MaxTokens = to.Ptr(int32(p.opts.MaxTokens))
	}
	if p.opts.Temperature > 0 {
		req.Temperature = to.Ptr(p.opts.Temperature)
	}
	if p.opts.TopP > 0 {
		req.TopP = to.Ptr(p.opts.TopP)
	}

	resp, err := p.client.GetChatCompletions(ctx, req, nil)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) > 0 && resp.Choices[0].Message != nil && resp.Choices[0].Message.Content != nil {
		return *resp.Choices[0].Message.Content, nil
	}
	return "", errors.New("no completion received from model")
}

func chatMessages(prompt ports.Prompt) []azopenai.ChatRequestMessageClassification {
	msgs := make([]azopenai.ChatRequestMessageClassification, 0, len(prompt.Messages)+1)
	if prompt.System != "" {
		msgs = append(msgs, &azopenai.ChatRequestSystemMessage{
			Content: azopenai.NewChatRequestSystemMessageContent(prompt.System),
		})
	}
	for _, m := range prompt.Messages {
		switch m.Role {
		case "assistant":
			msgs = append(msgs, &azopenai.ChatRequestAssistantMessage{
				Content: azopenai.NewChatRequestAssistantMessageContent(m.Content),
			})
		case "system":
			msgs = append(msgs, &azopenai.ChatRequestSystemMessage{
				Content: azopenai.NewChatRequestSystemMessageContent(m.Content),
			})
		default:
			msgs = append(msgs, &azopenai.ChatRequestUserMessage{
				Content: azopenai.NewChatRequestUserMessageContent(m.Content),
			})
		}
	}
	return msgs
}

var _ ports.Provider = (*AzureProvider)(nil)
