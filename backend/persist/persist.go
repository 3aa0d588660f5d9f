// Package persist 负责状态文件的读写与版本校验。
// 只保存操作员配置（节点、节点组、规则集、设置）；健康样本与编译结果都是运行时数据。
package persist
