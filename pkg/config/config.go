package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Dictionary DictionaryConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	Zilliz     ZillizConfig
	Neo4j      Neo4jConfig
	LLM        LLMConfig
	RAG        RAGConfig
	Validation ValidationConfig
	RateLimit  RateLimitConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
	AllowOrigins string
}

type DictionaryConfig struct {
	Dir string
	// BackupDir defaults to <Dir>/backups when empty.
	BackupDir string
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled    bool
	Host       string
	Port       int
	Password   string
	DB         int
	TTLSeconds int
}

type ZillizConfig struct {
	Enabled        bool
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type Neo4jConfig struct {
	Enabled  bool
	URI      string
	Username string
	Password string
	Database string
}

type LLMConfig struct {
	// Provider is one of openai, ollama or enterprise. The latter two speak
	// the OpenAI wire protocol at BaseURL.
	Provider       string
	BaseURL        string
	Model          string
	APIKey         string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
	EmbeddingModel string
}

type RAGConfig struct {
	UploadDir    string
	TopK         int
	ChunkSize    int
	ChunkOverlap int
}

type ValidationConfig struct {
	MaxQuestionLength int
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	return LoadWith(viper.New())
}

// LoadWith reads configuration into v. A .env file in the working
// directory is applied to the process environment first when present.
func LoadWith(v *viper.Viper) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/kcb-text2sql")

	v.SetEnvPrefix("KCB_TEXT2SQL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	_ = v.BindEnv("llm.apiKey", "KCB_TEXT2SQL_LLM_APIKEY", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.baseURL", "KCB_TEXT2SQL_LLM_BASEURL", "LLM_BASE_URL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Dictionary.BackupDir == "" {
		config.Dictionary.BackupDir = config.Dictionary.Dir + "/backups"
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "ollama", "enterprise", "none":
	default:
		return fmt.Errorf("unsupported llm provider: %s", c.LLM.Provider)
	}
	if c.LLM.Provider != "openai" && c.LLM.Provider != "none" && c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.baseURL is required for provider %s", c.LLM.Provider)
	}
	if c.Dictionary.Dir == "" {
		return errors.New("dictionary.dir is required")
	}
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunkOverlap (%d) must be smaller than rag.chunkSize (%d)", c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	return nil
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 60)
	v.SetDefault("server.bodyLimit", 16*1024*1024)
	v.SetDefault("server.allowOrigins", "*")

	v.SetDefault("dictionary.dir", "./dictionaries")
	v.SetDefault("dictionary.backupDir", "")

	v.SetDefault("sqlite.path", "./data/text2sql.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttlSeconds", 3600)

	v.SetDefault("zilliz.enabled", false)
	v.SetDefault("zilliz.endpoint", "localhost:19530")
	v.SetDefault("zilliz.collectionName", "kcb_rag_chunks")
	v.SetDefault("zilliz.vectorDim", 1536)

	v.SetDefault("neo4j.enabled", false)
	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "password")
	v.SetDefault("neo4j.database", "neo4j")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.baseURL", "")
	v.SetDefault("llm.model", "gpt-3.5-turbo")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.maxTokens", 500)
	v.SetDefault("llm.timeoutSec", 60)
	v.SetDefault("llm.embeddingModel", "text-embedding-3-small")

	v.SetDefault("rag.uploadDir", "./uploads")
	v.SetDefault("rag.topK", 3)
	v.SetDefault("rag.chunkSize", 1000)
	v.SetDefault("rag.chunkOverlap", 200)

	v.SetDefault("validation.maxQuestionLength", 1000)

	v.SetDefault("rateLimit.requestsPerMinute", 120)
	v.SetDefault("rateLimit.burst", 20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
