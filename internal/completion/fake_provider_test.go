package completion

import (
	"context"
	"sync/atomic"
)

// fakeProvider is a scriptable Provider used across this package's tests.
// Each call consumes the next entry of its respective queue.
type fakeProvider struct {
	name string

	completeErrs []error
	completeResp []Response
	completeCall atomic.Int64

	structuredErrs []error
	structuredResp []string
	structuredCall atomic.Int64

	functionErrs []error
	functionResp []FunctionCallResult
	functionCall atomic.Int64
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(_ context.Context, _ Request) (Response, error) {
	i := f.completeCall.Add(1) - 1
	var resp Response
	if int(i) < len(f.completeResp) {
		resp = f.completeResp[i]
	}
	var err error
	if int(i) < len(f.completeErrs) {
		err = f.completeErrs[i]
	}
	return resp, err
}

func (f *fakeProvider) CompleteStructured(_ context.Context, _ Request, _ Schema) (string, error) {
	i := f.structuredCall.Add(1) - 1
	var resp string
	if int(i) < len(f.structuredResp) {
		resp = f.structuredResp[i]
	}
	var err error
	if int(i) < len(f.structuredErrs) {
		err = f.structuredErrs[i]
	}
	return resp, err
}

func (f *fakeProvider) CompleteWithFunctions(_ context.Context, _ Request, _ []FunctionDefinition) (FunctionCallResult, error) {
	i := f.functionCall.Add(1) - 1
	var resp FunctionCallResult
	if int(i) < len(f.functionResp) {
		resp = f.functionResp[i]
	}
	var err error
	if int(i) < len(f.functionErrs) {
		err = f.functionErrs[i]
	}
	return resp, err
}
