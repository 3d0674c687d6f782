package errors

// 通用错误
var (
	ErrInvalidParam = define(ServiceCommon, CategoryRequest, 1, "Invalid parameter", "参数无效")
	ErrNotFound     = define(ServiceCommon, CategoryResource, 1, "Resource not found", "资源不存在")
	ErrInternal     = define(ServiceCommon, CategoryInternal, 1, "Internal server error", "服务器内部错误")
	ErrTimeout      = define(ServiceCommon, CategoryTimeout, 1, "Operation timeout", "操作超时")
	ErrCanceled     = define(ServiceCommon, CategoryTimeout, 2, "Operation canceled", "操作已取消")
	ErrConfig       = define(ServiceCommon, CategoryConfig, 1, "Invalid configuration", "配置无效")
)
