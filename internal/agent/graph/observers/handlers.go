package observers

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/Chative-triage/server/pkg/logger"
)

type graphStartKey struct{}

// NewAllCallbacks combines the prompt, model, tool and graph observers into
// the single handler passed to every workflow invocation.
func NewAllCallbacks() einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		Tool(newToolHandler()).
		ChatModel(newModelHandler()).
		Prompt(newPromptHandler()).
		Graph(newGraphHandler()).
		Handler()
}

// newGraphHandler logs how long each workflow invocation took and why it failed.
func newGraphHandler() einocb.Handler {
	return einocb.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, _ *einocb.RunInfo, _ einocb.CallbackInput) context.Context {
			return context.WithValue(ctx, graphStartKey{}, time.Now())
		}).
		OnEndFn(func(ctx context.Context, info *einocb.RunInfo, _ einocb.CallbackOutput) context.Context {
			logx.Debug().Str("graph", info.Name).Dur("elapsed", sinceStart(ctx)).Msg("workflow pass finished")
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Err(err).Str("graph", info.Name).Dur("elapsed", sinceStart(ctx)).Msg("workflow pass failed")
			return ctx
		}).
		Build()
}

func sinceStart(ctx context.Context) time.Duration {
	if start, ok := ctx.Value(graphStartKey{}).(time.Time); ok {
		return time.Since(start)
	}
	return 0
}
