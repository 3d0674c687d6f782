package errors

// 向量服务错误码: 21，嵌入服务错误码: 90
var (
	// 配置与请求
	ErrVectorInvalidConfig = define(ServiceVector, CategoryConfig, 1, "Invalid vector index configuration", "向量索引配置无效")
	ErrUnsupportedProvider = define(ServiceVector, CategoryConfig, 2, "Unsupported provider", "不支持的提供者")
	ErrInvalidFilter       = define(ServiceVector, CategoryRequest, 1, "Invalid vector filter", "向量过滤条件无效")
	ErrInvalidInput        = define(ServiceVector, CategoryRequest, 2, "Invalid input", "输入无效")

	// 索引生命周期
	ErrIndexNotReady     = define(ServiceVector, CategoryTimeout, 1, "Vector index not ready", "向量索引未就绪")
	ErrIndexCreateFailed = define(ServiceVector, CategoryDatabase, 1, "Vector index creation failed", "向量索引创建失败")
	ErrIndexNotFound     = define(ServiceVector, CategoryResource, 1, "Vector index not found", "向量索引不存在")

	// 数据操作
	ErrUpsertFailed = define(ServiceVector, CategoryDatabase, 2, "Vector upsert failed", "向量写入失败")
	ErrQueryFailed  = define(ServiceVector, CategoryDatabase, 3, "Vector query failed", "向量查询失败")
	ErrDeleteFailed = define(ServiceVector, CategoryDatabase, 4, "Vector delete failed", "向量删除失败")
	ErrFetchFailed  = define(ServiceVector, CategoryDatabase, 5, "Vector fetch failed", "向量读取失败")
	ErrIndexTimeout = define(ServiceVector, CategoryTimeout, 2, "Vector index request timeout", "向量索引请求超时")
	ErrIndexNetwork = define(ServiceVector, CategoryNetwork, 1, "Vector index unavailable", "向量索引服务不可用")

	// 嵌入服务
	ErrEmbeddingFailed      = define(ServiceEmbedding, CategoryInternal, 1, "Embedding generation failed", "向量化失败")
	ErrEmbeddingRateLimited = define(ServiceEmbedding, CategoryRateLimit, 1, "Embedding provider rate limited", "向量化服务限流")
	ErrEmbeddingUnavailable = define(ServiceEmbedding, CategoryNetwork, 1, "Embedding provider unavailable", "向量化服务不可用")
)
