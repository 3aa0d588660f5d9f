package repository

import (
	"errors"
	"fmt"
)

// 通用仓储错误
var (
	// ErrNotFound 实体不存在
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists 实体已存在
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrInvalidID ID 无效
	ErrInvalidID = errors.New("invalid entity ID")

	// ErrInvalidData 数据无效
	ErrInvalidData = errors.New("invalid entity data")

	// ErrReference 引用了不存在或未启用的实体
	ErrReference = errors.New("invalid entity reference")
)

// Node 相关错误
var (
	ErrNodeNotFound = fmt.Errorf("node: %w", ErrNotFound)
)

// NodeGroup 相关错误
var (
	ErrNodeGroupNotFound = fmt.Errorf("node group: %w", ErrNotFound)
	ErrNodeGroupTagTaken = fmt.Errorf("node group tag used by an active group: %w", ErrAlreadyExists)
)

// RuleSet 相关错误
var (
	ErrRuleSetNotFound = fmt.Errorf("rule set: %w", ErrNotFound)
)
