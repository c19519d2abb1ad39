package bedrock

import (
	"context"
	"fmt"
	"time"

	"github.com/Rrens/kb-chat/internal/config"
	"github.com/Rrens/kb-chat/internal/llm"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
)

// RetrieveAndGenerateAPI is the subset of the Bedrock agent runtime client used here
type RetrieveAndGenerateAPI interface {
	RetrieveAndGenerate(ctx context.Context, params *bedrockagentruntime.RetrieveAndGenerateInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveAndGenerateOutput, error)
}

// Provider answers prompts with knowledge base retrieve-and-generate
type Provider struct {
	api             RetrieveAndGenerateAPI
	knowledgeBaseID string
	modelARN        string
}

// NewProvider loads AWS credentials from the default chain. The SDK retryer
// is limited to a single attempt; a failed call surfaces to the caller.
func NewProvider(ctx context.Context, cfg config.BedrockConfig) (*Provider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryMaxAttempts(1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewWithClient(bedrockagentruntime.NewFromConfig(awsCfg), cfg), nil
}

// NewWithClient wraps an existing client
func NewWithClient(api RetrieveAndGenerateAPI, cfg config.BedrockConfig) *Provider {
	return &Provider{
		api:             api,
		knowledgeBaseID: cfg.KnowledgeBaseID,
		modelARN:        cfg.ModelARN,
	}
}

func (p *Provider) Name() string {
	return "bedrock"
}

func (p *Provider) AvailableModels() []string {
	return []string{p.modelARN}
}

func (p *Provider) DefaultModel() string {
	return p.modelARN
}

func (p *Provider) IsConfigured() bool {
	return p.api != nil && p.knowledgeBaseID != "" && p.modelARN != ""
}

// Generate sends the whole prompt as the retrieval query. req.Model, when
// set, overrides the configured model ARN.
func (p *Provider) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	modelARN := req.Model
	if modelARN == "" {
		modelARN = p.modelARN
	}

	input := &bedrockagentruntime.RetrieveAndGenerateInput{
		Input: &types.RetrieveAndGenerateInput{
			Text: aws.String(req.Prompt),
		},
		RetrieveAndGenerateConfiguration: &types.RetrieveAndGenerateConfiguration{
			Type: types.RetrieveAndGenerateTypeKnowledgeBase,
			KnowledgeBaseConfiguration: &types.KnowledgeBaseRetrieveAndGenerateConfiguration{
				KnowledgeBaseId: aws.String(p.knowledgeBaseID),
				ModelArn:        aws.String(modelARN),
			},
		},
	}

	start := time.Now()
	out, err := p.api.RetrieveAndGenerate(ctx, input)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return nil, fmt.Errorf("retrieve and generate: %w", err)
	}

	if out == nil || out.Output == nil || out.Output.Text == nil {
		return nil, fmt.Errorf("%w: no output text", llm.ErrMalformedResponse)
	}

	return &llm.Response{
		Text:      aws.ToString(out.Output.Text),
		Model:     modelARN,
		LatencyMs: latency,
	}, nil
}
