package shared

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator 全局结构体校验器（validate 标签）
var Validator = validator.New()

// ValidateStruct 校验结构体标签，失败项逐条写入 problems。
// prefix 用于区分实体（如 "node"、"node group"）。
func ValidateStruct(prefix string, v any, problems *Problems) {
	err := Validator.Struct(v)
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		problems.Addf("%s: %v", prefix, err)
		return
	}
	for _, fe := range fieldErrs {
		problems.Add(describeField(prefix, fe))
	}
}

func describeField(prefix string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s: %s is required", prefix, fe.Field())
	case "oneof":
		return fmt.Sprintf("%s: %s must be one of [%s], got %v", prefix, fe.Field(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s: %s failed %s=%s (got %v)", prefix, fe.Field(), fe.Tag(), fe.Param(), fe.Value())
	}
}
