// internal/service/reservation/infrastructure/cel_policy.go
package infrastructure

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"taller/internal/service/reservation/domain"
)

// CELLinePolicy 是 domain.LinePolicy 的 CEL 实现
// 管理员用一条表达式约束提交的物料行，例如
// "quantity <= 50 || role == 'administrator'"
// 这是一个典型的适配器模式应用，把第三方表达式引擎适配到领域接口
type CELLinePolicy struct {
	program cel.Program
}

// NewCELLinePolicy 编译策略表达式
// 表达式必须产出布尔值；编译失败说明配置本身有问题，直接返回错误
func NewCELLinePolicy(expression string) (*CELLinePolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("material_id", cel.StringType),
		cel.Variable("quantity", cel.IntType),
		cel.Variable("available", cel.IntType),
		cel.Variable("role", cel.StringType),
	)
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid line policy expression: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("line policy expression must evaluate to bool, got %s", ast.OutputType())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	return &CELLinePolicy{program: program}, nil
}

// Evaluate 实现 domain.LinePolicy
func (p *CELLinePolicy) Evaluate(ctx context.Context, fact domain.LineFact) (bool, error) {
	out, _, err := p.program.ContextEval(ctx, map[string]interface{}{
		"material_id": fact.MaterialID,
		"quantity":    fact.Quantity,
		"available":   fact.Available,
		"role":        fact.Role,
	})
	if err != nil {
		return false, err
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("unexpected result type from policy expression: %T", out.Value())
	}
	return allowed, nil
}
