package knowledge

// Config 知识检索模块配置
type Config struct {
	// 向量索引存储
	DataDir    string `json:"data_dir"`
	Collection string `json:"collection"`
	Compress   bool   `json:"compress"`

	// Chunker 配置（单位：字符）
	ChunkTargetSize int `json:"chunk_target_size"`
	ChunkOverlap    int `json:"chunk_overlap"`
	ChunkMinSize    int `json:"chunk_min_size"`

	// 检索配置
	DefaultTopK int `json:"default_top_k"`

	// Embedding
	EmbeddingModel     string `json:"embedding_model,omitempty"`
	EmbeddingDims      int    `json:"embedding_dims,omitempty"`
	EmbeddingBatchSize int    `json:"embedding_batch_size,omitempty"`

	// 索引操作的 worker 池大小
	IndexWorkers int `json:"index_workers"`

	// 最大文件大小（MB）
	MaxFileSize int `json:"max_file_size"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		DataDir:            "./data/index",
		Collection:         "knowledge",
		ChunkTargetSize:    512,
		ChunkOverlap:       128,
		ChunkMinSize:       64,
		DefaultTopK:        5,
		EmbeddingModel:     "text-embedding-3-small",
		EmbeddingDims:      1536,
		EmbeddingBatchSize: 64,
		IndexWorkers:       4,
		MaxFileSize:        50,
	}
}
