package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config 应用配置
type Config struct {
	Env         string
	AppSecret   string
	DatabaseURL string
	Port        string

	// TMDB
	TMDBToken     string
	TMDBAPIKey    string
	TMDBBaseURL   string
	TMDBLanguage  string
	TMDBRateLimit float64 // 每秒请求数
	RedisURL      string
	CacheTTL      time.Duration

	// LLM（查询意图解析）
	LLMProvider   string // gemini | openai | none
	GeminiAPIKey  string
	GeminiModel   string
	OpenAIBaseURL string
	OpenAIModel   string
	OpenAIToken   string

	// 向量
	OllamaHost   string
	OllamaModel  string
	EmbeddingDim int
	VectorLimit  int

	// 并发检索
	SearchWorkers int
	QueryTimeout  time.Duration
	QueryLogDir   string

	SearchLogRetentionDays int
}

// Load 加载配置
func Load() *Config {
	dbUser := getEnv("DB_USER", "postgres")
	dbPass := getEnv("DB_PASSWORD", "postgres")
	dbHost := getEnv("DB_HOST", "localhost")
	dbPort := getEnv("DB_PORT", "5432")
	dbName := getEnv("DB_NAME", "cinesearch")
	dbSSL := getEnv("DB_SSLMODE", "disable")

	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbUser, dbPass, dbHost, dbPort, dbName, dbSSL)

	appSecret := getEnv("APP_SECRET", "your-secret-key-change-in-production")

	if getEnv("APP_ENV", "development") == "production" && appSecret == "your-secret-key-change-in-production" {
		fmt.Println("【严重警告】生产环境正在使用默认密钥！请立即设置 APP_SECRET 环境变量。")
	}

	return &Config{
		Env:         getEnv("APP_ENV", "development"),
		AppSecret:   appSecret,
		DatabaseURL: dbURL,
		Port:        getEnv("PORT", "5005"),

		TMDBToken:     getEnv("TMDB_TOKEN", ""),
		TMDBAPIKey:    getEnv("TMDB_API_KEY", ""),
		TMDBBaseURL:   getEnv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		TMDBLanguage:  getEnv("TMDB_LANGUAGE", "en-US"),
		TMDBRateLimit: getFloat("TMDB_RATE_LIMIT", 20),
		RedisURL:      getEnv("REDIS_URL", ""),
		CacheTTL:      time.Duration(getInt("CACHE_TTL_MINUTES", 30)) * time.Minute,

		LLMProvider:   getEnv("LLM_PROVIDER", "gemini"),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "http://localhost:11434/v1"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "qwen2.5:7b"),
		OpenAIToken:   getEnv("OPENAI_TOKEN", "none"),

		OllamaHost:   getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OllamaModel:  getEnv("OLLAMA_MODEL", "nomic-embed-text"),
		EmbeddingDim: getInt("EMBEDDING_DIM", 768),
		VectorLimit:  getInt("VECTOR_LIMIT", 10),

		SearchWorkers: getInt("SEARCH_WORKERS", 5),
		QueryTimeout:  time.Duration(getInt("QUERY_TIMEOUT_SECONDS", 60)) * time.Second,
		QueryLogDir:   getEnv("QUERY_LOG_DIR", ""),

		SearchLogRetentionDays: getInt("SEARCH_LOG_RETENTION_DAYS", 30),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return v
}
