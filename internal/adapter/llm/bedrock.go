package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel/trace"

	"conductor/internal/domain"
	"conductor/internal/infra/config"
	"conductor/internal/infra/tracer"
)

// bedrockConverseAPI abstracts the Bedrock runtime methods for testability.
type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockCompleter implements domain.Completer via the AWS Bedrock Converse API.
type BedrockCompleter struct {
	name   string
	model  string
	client bedrockConverseAPI
	logger *slog.Logger
}

// NewBedrockCompleter creates a Bedrock completer using the default AWS
// credential chain.
func NewBedrockCompleter(cfg config.LLMConfig, logger *slog.Logger) (*BedrockCompleter, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &BedrockCompleter{
		name:   "bedrock",
		model:  cfg.Model,
		client: bedrockruntime.NewFromConfig(awsCfg),
		logger: logger,
	}, nil
}

// newBedrockCompleterWithClient creates a BedrockCompleter with an injected
// client (for testing).
func newBedrockCompleterWithClient(model string, client bedrockConverseAPI, logger *slog.Logger) *BedrockCompleter {
	return &BedrockCompleter{
		name:   "bedrock",
		model:  model,
		client: client,
		logger: logger,
	}
}

// Complete implements domain.Completer.
func (p *BedrockCompleter) Complete(ctx context.Context, prompt string, opts domain.CompleteOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = p.model
	}

	ctx, span := tracer.StartSpan(ctx, "llm.complete",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", model),
		),
	)
	defer span.End()

	input := toConverseInput(prompt, model, opts)

	output, err := p.client.Converse(ctx, input)
	if err != nil {
		tracer.RecordError(span, err)
		return "", mapBedrockError(err)
	}

	text := textFromConverseOutput(output)
	tracer.SetOK(span)
	p.logger.Debug("completion finished",
		"provider", p.name, "model", model, "chars", len(text))

	return text, nil
}

// Name implements domain.Completer.
func (p *BedrockCompleter) Name() string { return p.name }

// --- Bedrock request/response conversion ---

func toConverseInput(prompt, model string, opts domain.CompleteOptions) *bedrockruntime.ConverseInput {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(model),
		Messages: []types.Message{{
			Role: types.ConversationRoleUser,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: prompt},
			},
		}},
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	input.InferenceConfig = &types.InferenceConfiguration{
		MaxTokens: aws.Int32(int32(maxTokens)),
	}
	if opts.Temperature > 0 {
		input.InferenceConfig.Temperature = aws.Float32(float32(opts.Temperature))
	}

	return input
}

func textFromConverseOutput(output *bedrockruntime.ConverseOutput) string {
	outMsg, ok := output.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	text := ""
	for _, block := range outMsg.Value.Content {
		if b, ok := block.(*types.ContentBlockMemberText); ok {
			text += b.Value
		}
	}
	return text
}

// --- Error mapping ---

// mapBedrockError translates AWS error codes onto the domain sentinels. The
// wrapped messages keep the provider's wording so downstream classification
// can inspect them.
func mapBedrockError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return fmt.Errorf("%w: %s", domain.ErrRateLimit, msg)
		case "AccessDeniedException", "UnrecognizedClientException", "ExpiredTokenException":
			return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, msg)
		case "ModelTimeoutException":
			return fmt.Errorf("%w: request timeout: %s", domain.ErrTimeout, msg)
		case "ModelNotReadyException", "ServiceUnavailableException", "InternalServerException":
			return fmt.Errorf("%w: %s", domain.ErrProviderError, msg)
		}
	}

	return domain.WrapOp("bedrock", err)
}

// Compile-time interface check.
var _ domain.Completer = (*BedrockCompleter)(nil)
