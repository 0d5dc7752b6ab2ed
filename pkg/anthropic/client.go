// Package anthropic wraps the Anthropic SDK as the document-analysis
// provider. Given document bytes and a mime type it returns the model's raw
// text output; the pipeline's normalizer deals with whatever shape that
// text takes.
package anthropic

import (
	"context"
	"encoding/base64"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/workless-ai/docscan/internal/resilience"
)

// Provider analyzes a document and returns raw model output. The output is
// free text and not guaranteed to be well-formed JSON.
type Provider interface {
	Analyze(ctx context.Context, data []byte, mimeType string) (string, error)
}

// extractionPrompt asks the model for structured document data in the JSON
// shape the normalizer expects.
const extractionPrompt = `Analyze this document and extract structured data.

Please:
1. Extract all relevant fields (Name, Date, Amount, Description, Reference, etc.)
2. Standardize date formats to ISO 8601 (YYYY-MM-DD)
3. Identify any OCR errors or inconsistencies
4. Provide confidence scores for each extracted field (0-100)
5. Explain what data points you identified and any formatting changes made

Return your analysis in the following JSON format:
{
  "fields": [
    {
      "field": "field_name",
      "value": "extracted_value",
      "confidence": 95
    }
  ],
  "explanation": "Brief explanation of what was found and processed",
  "formatting_changes": [
    {
      "type": "formatting|correction|structure",
      "message": "Description of change"
    }
  ],
  "overall_confidence": 95
}

Focus on accuracy and provide clear, structured data.`

// Options tunes the client.
type Options struct {
	Model             string
	MaxTokens         int64
	RequestsPerMinute float64
}

// Client implements Provider using the official anthropic-sdk-go.
type Client struct {
	client    sdk.Client
	model     string
	maxTokens int64
	limiter   *rate.Limiter
	breaker   *resilience.CircuitBreaker
}

// NewClient creates a provider client. Outbound calls are paced by a token
// bucket and guarded by a circuit breaker so a failing provider sheds load
// fast instead of queueing requests.
func NewClient(apiKey string, opts Options) *Client {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	rpm := opts.RequestsPerMinute
	if rpm <= 0 {
		rpm = 50
	}
	return &Client{
		client:    sdk.NewClient(option.WithAPIKey(apiKey)),
		model:     opts.Model,
		maxTokens: maxTokens,
		limiter:   rate.NewLimiter(rate.Limit(rpm/60), 1),
		breaker:   resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{}),
	}
}

// Analyze sends the document with the extraction prompt and returns the
// concatenated text blocks of the response.
func (c *Client) Analyze(ctx context.Context, data []byte, mimeType string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "anthropic: rate limiter wait")
	}

	encoded := base64.StdEncoding.EncodeToString(data)

	var docBlock sdk.ContentBlockParamUnion
	if mimeType == "application/pdf" {
		docBlock = sdk.NewDocumentBlock(sdk.Base64PDFSourceParam{Data: encoded})
	} else {
		docBlock = sdk.NewImageBlockBase64(mimeType, encoded)
	}

	msg, err := resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*sdk.Message, error) {
		return c.client.Messages.New(ctx, sdk.MessageNewParams{
			Model:     sdk.Model(c.model),
			MaxTokens: c.maxTokens,
			Messages: []sdk.MessageParam{
				sdk.NewUserMessage(docBlock, sdk.NewTextBlock(extractionPrompt)),
			},
		})
	})
	if err != nil {
		return "", eris.Wrap(err, "anthropic: create message")
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
