package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/ratingkit/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

// initCELEnv 初始化 CEL 环境，定义变量
func initCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("neighbor", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("target", cel.MapType(cel.StringType, cel.StringType)),
	)
}

// getCELEnv 获取或创建 CEL 环境
func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = initCELEnv()
	})
	return celEnv, celEnvErr
}

// CandidateFilter 是候选用户的表达式过滤器，使用 CEL (Common Expression Language) 实现。
// 表达式在构造时编译一次，Match 可并发调用。
//
// 可用变量：
//   - neighbor.user_id / neighbor.similarity / neighbor.score / neighbor.co_rated
//   - target.user_id / target.item_id
//
// 示例：
//   - `neighbor.co_rated >= 3`
//   - `neighbor.similarity > 0.2 && neighbor.user_id != "42"`
type CandidateFilter struct {
	expr string
	prg  cel.Program
}

// NewCandidateFilter 编译表达式，表达式必须返回 bool。
func NewCandidateFilter(expr string) (*CandidateFilter, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, core.NewDomainError(core.ModulePredict, core.ErrorCodeInvalidInput,
			fmt.Sprintf("dsl: compile %q: %v", expr, issues.Err()))
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, core.NewDomainError(core.ModulePredict, core.ErrorCodeInvalidInput,
			fmt.Sprintf("dsl: expression %q must return bool, got %s", expr, ast.OutputType()))
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %w", err)
	}
	return &CandidateFilter{expr: expr, prg: prg}, nil
}

// String 返回原始表达式
func (f *CandidateFilter) String() string {
	return f.expr
}

// Match 对一个候选用户求值。
func (f *CandidateFilter) Match(n core.Neighbor, userID, itemID string) (bool, error) {
	out, _, err := f.prg.Eval(map[string]any{
		"neighbor": map[string]any{
			"user_id":    n.UserID,
			"similarity": n.Similarity,
			"score":      n.Score,
			"co_rated":   int64(n.CoRated),
		},
		"target": map[string]string{
			"user_id": userID,
			"item_id": itemID,
		},
	})
	if err != nil {
		return false, fmt.Errorf("eval error: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}
