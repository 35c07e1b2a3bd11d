package infra

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/7FIl/CS-Bot/domain/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
)

type OpenAI struct {
	client *openai.Client
}

// NewOpenAI returns (nil, nil) when no API key is configured; the summary
// feature is optional.
func NewOpenAI() (*OpenAI, error) {
	if os.Getenv("OPENAI_API_KEY") == "" && os.Getenv("AZURE_OPENAI_KEY") == "" {
		return nil, nil
	}
	client, err := newOpenAIClient()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
	}
	return &OpenAI{
		client: client,
	}, nil
}

func newOpenAIClient() (*openai.Client, error) {
	if os.Getenv("AZURE_OPENAI_ENDPOINT") != "" {
		return newAzureClient()
	}

	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	options := []option.RequestOption{
		option.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
	}

	c := openai.NewClient(options...)
	return &c, nil
}

func newAzureClient() (*openai.Client, error) {
	key := os.Getenv("AZURE_OPENAI_KEY")
	if key == "" {
		return nil, fmt.Errorf("AZURE_OPENAI_KEY is not set")
	}
	var azureOpenAIEndpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")

	var azureOpenAIAPIVersion = "2025-01-01-preview"

	if os.Getenv("AZURE_OPENAI_API_VERSION") != "" {
		azureOpenAIAPIVersion = os.Getenv("AZURE_OPENAI_API_VERSION")
	}

	c := openai.NewClient(
		azure.WithEndpoint(azureOpenAIEndpoint, azureOpenAIAPIVersion),
		azure.WithAPIKey(key),
	)
	return &c, nil
}

// GenerateSummary asks for a staff-facing digest of the recent ticket tail.
func (h *OpenAI) GenerateSummary(ctx context.Context, tickets []model.Ticket) (string, error) {
	var lines []string
	for _, t := range tickets {
		lines = append(lines, fmt.Sprintf("#%d [%s] created:%s order:%s issue:%s requester:%s",
			t.TicketNumber, t.Status, t.Timestamp, t.OrderID, t.IssueType, t.RequesterName))
	}

	prompt := fmt.Sprintf(`## Task
The content below is our team's recent customer-support ticket log.
Each line is one ticket: number, status, creation time, order id, issue type, requester.
Write a short digest the support team can use to understand the current workload.

## Required sections
*Tickets still waiting*
> list PENDING tickets that look old, with a comment if needed

*Tickets in progress*
> summarize what is being worked on

*Patterns worth attention*
> recurring issue types or anything that looks hard to resolve

## Current time
%s
## Tickets
%s
`,
		timeNow().Format("2006-01-02 15:04:05"),
		strings.Join(lines, "\n"),
	)

	response, err := h.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: os.Getenv("OPENAI_MODEL"),
	})

	if err != nil {
		return "", fmt.Errorf("failed to call OpenAI API: %w", err)
	}

	return response.Choices[0].Message.Content, nil
}
