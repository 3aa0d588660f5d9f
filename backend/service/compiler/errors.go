package compiler

import "lattice/backend/service/shared"

// 编译错误类型（与保存时校验共用同一组类型）
type (
	ValidationError = shared.ValidationError
	ReferenceError  = shared.ReferenceError
)

// WarningKind 警告类别
type WarningKind string

const (
	// WarningResolution 启用的规则集指向当前没有成员的节点组
	WarningResolution WarningKind = "resolution"
	// WarningDedup 同分类同类型的规则集被较新的记录取代
	WarningDedup WarningKind = "dedup"
)

// Warning 编译成功但需要提示操作员的问题
type Warning struct {
	Kind    WarningKind `json:"kind" yaml:"kind"`
	Subject string      `json:"subject" yaml:"subject"` // 规则集 ID
	Message string      `json:"message" yaml:"message"`
}
