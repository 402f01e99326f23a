package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
)

const (
	DefaultInputNode = "FlowInputNode"
	inputOutputName  = "document"
)

var errNoFlowOutput = errors.New("flow response ended without an output event")

type flowStream interface {
	Events() <-chan types.FlowResponseStream
	Close() error
	Err() error
}

type invokeFunc func(ctx context.Context, input *bedrockagentruntime.InvokeFlowInput) (flowStream, error)

type FlowConfig struct {
	FlowID      string
	FlowAliasID string
	InputNode   string
}

// FlowClient answers prompts by invoking a Bedrock prompt flow whose input
// node takes the prompt as its document.
type FlowClient struct {
	invoke invokeFunc
	cfg    FlowConfig
	logger *slog.Logger
}

func NewFlowClient(client *bedrockagentruntime.Client, cfg FlowConfig, logger *slog.Logger) *FlowClient {
	invoke := func(ctx context.Context, input *bedrockagentruntime.InvokeFlowInput) (flowStream, error) {
		out, err := client.InvokeFlow(ctx, input)
		if err != nil {
			return nil, err
		}
		return out.GetStream(), nil
	}
	return newFlowClient(invoke, cfg, logger)
}

func newFlowClient(invoke invokeFunc, cfg FlowConfig, logger *slog.Logger) *FlowClient {
	if cfg.InputNode == "" {
		cfg.InputNode = DefaultInputNode
	}
	return &FlowClient{invoke: invoke, cfg: cfg, logger: logger}
}

func (c *FlowClient) Name() string {
	return "bedrock-flow"
}

func (c *FlowClient) Generate(ctx context.Context, prompt string) (string, error) {
	stream, err := c.invoke(ctx, &bedrockagentruntime.InvokeFlowInput{
		FlowIdentifier:      aws.String(c.cfg.FlowID),
		FlowAliasIdentifier: aws.String(c.cfg.FlowAliasID),
		Inputs: []types.FlowInput{{
			NodeName:       aws.String(c.cfg.InputNode),
			NodeOutputName: aws.String(inputOutputName),
			Content: &types.FlowInputContentMemberDocument{
				Value: document.NewLazyDocument(prompt),
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("invoking flow %s: %w", c.cfg.FlowID, err)
	}
	defer stream.Close()

	text, err := c.scanFlowOutput(ctx, stream.Events())
	if errors.Is(err, errNoFlowOutput) {
		if streamErr := stream.Err(); streamErr != nil {
			return "", fmt.Errorf("reading flow response: %w", streamErr)
		}
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// scanFlowOutput returns the text of the first output event. Completion and
// trace events before it are skipped.
func (c *FlowClient) scanFlowOutput(ctx context.Context, events <-chan types.FlowResponseStream) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case event, ok := <-events:
			if !ok {
				return "", errNoFlowOutput
			}

			switch e := event.(type) {
			case *types.FlowResponseStreamMemberFlowOutputEvent:
				c.logger.Debug("flow output received", "node", aws.ToString(e.Value.NodeName))
				return documentText(e.Value.Content)
			case *types.FlowResponseStreamMemberFlowCompletionEvent:
				c.logger.Debug("flow completed", "reason", e.Value.CompletionReason)
			default:
				c.logger.Debug("ignoring flow event", "type", fmt.Sprintf("%T", event))
			}
		}
	}
}

func documentText(content types.FlowOutputContent) (string, error) {
	doc, ok := content.(*types.FlowOutputContentMemberDocument)
	if !ok || doc.Value == nil {
		return "", fmt.Errorf("unexpected flow output content %T", content)
	}

	var text string
	if err := doc.Value.UnmarshalSmithyDocument(&text); err == nil {
		return text, nil
	}

	var value any
	if err := doc.Value.UnmarshalSmithyDocument(&value); err != nil {
		return "", fmt.Errorf("decoding flow output document: %w", err)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encoding flow output document: %w", err)
	}
	return string(data), nil
}
