package coordinator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	nodex "github.com/barefootzenith/refund-agent/agent/nodes"
)

func (c *Coordinator) compileHandleTurnGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("validate_turn",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateTurn(in, c.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_turn: %w", err)
	}

	if err := graph.AddLambdaNode("classify_intent",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ClassifyIntent(ctx, in, c.completer, c.prompts)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node classify_intent: %w", err)
	}

	if err := graph.AddLambdaNode("plan_calls",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.PlanCalls(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node plan_calls: %w", err)
	}

	if err := graph.AddLambdaNode("dispatch_handlers",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.DispatchCalls(ctx, in, c.handlers)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node dispatch_handlers: %w", err)
	}

	if err := graph.AddLambdaNode("assemble_response",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.AssembleResponse(ctx, in, c.completer, c.prompts, c.handlers)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node assemble_response: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_turn",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.FinalizeTurn(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_turn: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_turn"},
		{"validate_turn", "classify_intent"},
		{"classify_intent", "plan_calls"},
		{"plan_calls", "dispatch_handlers"},
		{"dispatch_handlers", "assemble_response"},
		{"assemble_response", "finalize_turn"},
		{"finalize_turn", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("coordinator.handle_turn"))
	if err != nil {
		return nil, fmt.Errorf("compile coordinator graph: %w", err)
	}
	return runner, nil
}
