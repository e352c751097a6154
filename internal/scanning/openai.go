package scanning

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"github.com/marcinparda/actual/internal/fault"
)

// OpenAI implements the Scanner interface using the OpenAI Responses API
type OpenAI struct {
	client *openai.Client
	model  shared.ResponsesModel
}

// NewOpenAI creates a new OpenAI Scanner instance
func NewOpenAI(apiKey string, modelName string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fault.New(fault.KindConfig, "openai api key is required")
	}
	if modelName == "" {
		modelName = "gpt-4o"
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAI{
		client: &client,
		model:  shared.ResponsesModel(modelName),
	}, nil
}

// ScanReceipt analyzes a receipt image and extracts structured expenses
func (o *OpenAI) ScanReceipt(ctx context.Context, imageData []byte, contentType string, categories []Category) (*Result, error) {
	// Prepare image data (convert to PNG if needed)
	finalImageData, mimeType, err := prepareImageData(imageData, contentType)
	if err != nil {
		return nil, err
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(finalImageData))

	resp, err := o.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:       o.model,
		Temperature: openai.Float(scanTemperature),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: responses.ResponseInputParam{
				responses.ResponseInputItemParamOfInputMessage(
					responses.ResponseInputMessageContentListParam{
						responses.ResponseInputContentParamOfInputText(buildPrompt(categories)),
						responses.ResponseInputContentUnionParam{
							OfInputImage: &responses.ResponseInputImageParam{
								ImageURL: openai.String(dataURL),
								Detail:   responses.ResponseInputImageDetailAuto,
							},
						},
					},
					"user",
				),
			},
		},
	})
	if err != nil {
		return nil, fault.Wrap(fault.KindProcessing, "calling openai", err)
	}

	text := strings.TrimSpace(resp.OutputText())
	if text == "" {
		return nil, fault.New(fault.KindProcessing, "no response from openai")
	}

	return resultFromResponse(text)
}

// Close closes the OpenAI client (no-op for HTTP client)
func (o *OpenAI) Close() error {
	return nil
}
