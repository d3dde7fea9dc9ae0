package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 300
	}
	if cfg.Embedding.Norm == "" {
		cfg.Embedding.Norm = "sumabs"
	}
	// 11 ranked slots show ten neighbours once the query word itself is dropped.
	if cfg.Search.K == 0 {
		cfg.Search.K = 11
	}
	if cfg.Search.MaxK == 0 {
		cfg.Search.MaxK = 1000
	}
	if cfg.Search.Backend == "" {
		cfg.Search.Backend = "parallel"
	}
	if cfg.Search.CacheSize == 0 {
		cfg.Search.CacheSize = 1024
	}
	if cfg.Search.Suggestions == 0 {
		cfg.Search.Suggestions = 3
	}
	if cfg.Search.MaxDistance == 0 {
		cfg.Search.MaxDistance = 2
	}
}
