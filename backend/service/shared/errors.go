package shared

import (
	"fmt"
	"strings"

	"lattice/backend/repository"
)

// ValidationError 保存时或编译时的校验失败（非法正则、DNS 地址格式、类型/来源不匹配等）
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Problems) == 0 {
		return "validation error"
	}
	return "validation error: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error {
	return repository.ErrInvalidData
}

// ReferenceError 规则集出站指向不存在或未启用的节点组
type ReferenceError struct {
	Problems []string
}

func (e *ReferenceError) Error() string {
	if e == nil || len(e.Problems) == 0 {
		return "reference error"
	}
	return "reference error: " + strings.Join(e.Problems, "; ")
}

func (e *ReferenceError) Unwrap() error {
	return repository.ErrReference
}

// Problems 收集问题列表，最后按需生成错误
type Problems []string

func (p *Problems) Add(problem string) {
	*p = append(*p, problem)
}

func (p *Problems) Addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

// Validation 没有问题时返回 nil
func (p Problems) Validation() error {
	if len(p) == 0 {
		return nil
	}
	return &ValidationError{Problems: append([]string(nil), p...)}
}

// Reference 没有问题时返回 nil
func (p Problems) Reference() error {
	if len(p) == 0 {
		return nil
	}
	return &ReferenceError{Problems: append([]string(nil), p...)}
}
