// Package storage defines the client contract shared by the backing services
// of the vector index (Milvus, OpenSearch, Redis) and a Manager that owns
// their lifecycle.
//
// Usage:
//
//	mgr := storage.NewManager()
//	mgr.MustRegister("milvus", milvusClient)
//	mgr.MustRegister("redis", redisClient)
//
//	for name, status := range mgr.HealthCheckAll(ctx) {
//	    logger.Infow("component health", "name", name, "healthy", status.Healthy)
//	}
//
//	defer mgr.CloseAll()
//
// The Manager is safe for concurrent use.
package storage
