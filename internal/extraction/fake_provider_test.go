package extraction

import (
	"context"
	"sync/atomic"

	"memlayer/internal/completion"
)

// fakeProvider scripts CompleteStructured responses in call order; Complete
// and CompleteWithFunctions are unused by this package and left as no-ops.
type fakeProvider struct {
	name      string
	responses []string
	errs      []error
	call      atomic.Int64

	capturedPrompts []string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(_ context.Context, _ completion.Request) (completion.Response, error) {
	return completion.Response{}, nil
}

func (f *fakeProvider) CompleteStructured(_ context.Context, req completion.Request, _ completion.Schema) (string, error) {
	i := f.call.Add(1) - 1
	if len(req.Messages) > 0 {
		f.capturedPrompts = append(f.capturedPrompts, req.Messages[len(req.Messages)-1].Content)
	}
	var resp string
	if int(i) < len(f.responses) {
		resp = f.responses[i]
	}
	var err error
	if int(i) < len(f.errs) {
		err = f.errs[i]
	}
	return resp, err
}

func (f *fakeProvider) CompleteWithFunctions(_ context.Context, _ completion.Request, _ []completion.FunctionDefinition) (completion.FunctionCallResult, error) {
	return completion.FunctionCallResult{}, nil
}
