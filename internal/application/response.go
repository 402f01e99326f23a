package application

import "context"

// ResponseGenerator performs one blocking request/response call to a remote model.
type ResponseGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}
