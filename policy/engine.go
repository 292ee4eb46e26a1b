// Package policy gates message sends with an OPA policy.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Engine evaluates the send policy.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a policy engine from the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.send_policy.decision"),
		rego.Module("send_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// SendInput is the policy input for one send attempt.
type SendInput struct {
	UserID  string `json:"user_id"`
	Content string `json:"content"`
	Length  int    `json:"length"`
}

// Evaluate returns the policy decision for a send: "allow" or "block".
// An empty result defaults to allow; the default policy always defines
// a decision.
func (e *Engine) Evaluate(ctx context.Context, input SendInput) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return "allow", nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return "allow", nil
}

// DefaultPolicy is the default send policy: allow everything except
// messages past the backend's content limit.
const DefaultPolicy = `
package send_policy

default decision = "allow"

decision = "block" {
	input.length > 10000
}
`
