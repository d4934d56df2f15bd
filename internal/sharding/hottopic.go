package sharding

import (
	"strings"

	"github.com/google/cel-go/cel"
)

// HotTopicPredicate decides, per spec §4.7, whether a subscription should
// be served by the proxy's subscription-level Multiplexer (hot topic) or
// by plain stream-level proxying (cold topic). It wraps a compiled CEL
// program the same way the teacher's stream-search celFilter does, but
// evaluated against a subscription's namespace/topic/fan-out instead of a
// record's payload.
type HotTopicPredicate struct {
	prog    cel.Program
	enabled bool
}

// NewHotTopicPredicate compiles expr. An empty expr disables the
// predicate entirely, in which case IsHot always returns false (every
// topic is proxied stream-level) — the conservative default.
func NewHotTopicPredicate(expr string) (*HotTopicPredicate, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return &HotTopicPredicate{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("namespace", cel.StringType),
		cel.Variable("topic", cel.StringType),
		cel.Variable("downstream_count", cel.IntType),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return nil, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return nil, err
	}
	return &HotTopicPredicate{prog: prog, enabled: true}, nil
}

// IsHot evaluates the predicate for a subscription arriving on namespace/
// topic, given the number of downstream subscribers already multiplexed
// onto it.
func (p *HotTopicPredicate) IsHot(namespace, topic string, downstreamCount int) bool {
	if !p.enabled {
		return false
	}
	out, _, err := p.prog.Eval(map[string]any{
		"namespace":        namespace,
		"topic":             topic,
		"downstream_count": int64(downstreamCount),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
