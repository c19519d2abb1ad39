package bedrock

import (
	"context"
	"errors"
	"testing"

	"github.com/Rrens/kb-chat/internal/config"
	"github.com/Rrens/kb-chat/internal/llm"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) RetrieveAndGenerate(ctx context.Context, params *bedrockagentruntime.RetrieveAndGenerateInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveAndGenerateOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bedrockagentruntime.RetrieveAndGenerateOutput), args.Error(1)
}

var testConfig = config.BedrockConfig{
	Region:          "us-east-1",
	KnowledgeBaseID: "KB123",
	ModelARN:        "arn:aws:bedrock:us-east-1::foundation-model/amazon.titan-text-premier-v1:0",
}

func TestProvider_Generate(t *testing.T) {
	ctx := context.Background()

	t.Run("sends prompt to knowledge base", func(t *testing.T) {
		api := new(MockAPI)
		api.On("RetrieveAndGenerate", ctx, mock.MatchedBy(func(in *bedrockagentruntime.RetrieveAndGenerateInput) bool {
			kb := in.RetrieveAndGenerateConfiguration.KnowledgeBaseConfiguration
			return aws.ToString(in.Input.Text) == "User: Hi\nBot: " &&
				in.RetrieveAndGenerateConfiguration.Type == types.RetrieveAndGenerateTypeKnowledgeBase &&
				aws.ToString(kb.KnowledgeBaseId) == "KB123" &&
				aws.ToString(kb.ModelArn) == testConfig.ModelARN
		})).Return(&bedrockagentruntime.RetrieveAndGenerateOutput{
			Output: &types.RetrieveAndGenerateOutput{Text: aws.String("Hello")},
		}, nil)

		p := NewWithClient(api, testConfig)
		resp, err := p.Generate(ctx, llm.Request{Prompt: "User: Hi\nBot: "})
		require.NoError(t, err)
		assert.Equal(t, "Hello", resp.Text)
		assert.Equal(t, testConfig.ModelARN, resp.Model)
		api.AssertExpectations(t)
	})

	t.Run("missing output is malformed", func(t *testing.T) {
		api := new(MockAPI)
		api.On("RetrieveAndGenerate", ctx, mock.Anything).Return(&bedrockagentruntime.RetrieveAndGenerateOutput{}, nil)

		_, err := NewWithClient(api, testConfig).Generate(ctx, llm.Request{Prompt: "p"})
		assert.ErrorIs(t, err, llm.ErrMalformedResponse)
	})

	t.Run("api error is wrapped", func(t *testing.T) {
		api := new(MockAPI)
		boom := errors.New("throttled")
		api.On("RetrieveAndGenerate", ctx, mock.Anything).Return(nil, boom)

		_, err := NewWithClient(api, testConfig).Generate(ctx, llm.Request{Prompt: "p"})
		assert.ErrorIs(t, err, boom)
	})
}

func TestNewProvider_SingleAttempt(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	p, err := NewProvider(context.Background(), testConfig)
	require.NoError(t, err)

	client, ok := p.api.(*bedrockagentruntime.Client)
	require.True(t, ok)
	assert.Equal(t, 1, client.Options().RetryMaxAttempts)
	assert.Equal(t, "us-east-1", client.Options().Region)
}

func TestProvider_IsConfigured(t *testing.T) {
	assert.True(t, NewWithClient(new(MockAPI), testConfig).IsConfigured())
	assert.False(t, NewWithClient(new(MockAPI), config.BedrockConfig{ModelARN: "m"}).IsConfigured())
	assert.False(t, NewWithClient(nil, testConfig).IsConfigured())
}
