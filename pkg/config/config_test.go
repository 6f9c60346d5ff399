package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWith_Defaults(t *testing.T) {
	cfg, err := LoadWith(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "./dictionaries", cfg.Dictionary.Dir)
	assert.Equal(t, "./dictionaries/backups", cfg.Dictionary.BackupDir)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.RAG.TopK)
	assert.Equal(t, 1000, cfg.Validation.MaxQuestionLength)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr())
}

func TestLoadWith_Environment(t *testing.T) {
	t.Setenv("KCB_TEXT2SQL_SERVER_PORT", "9090")
	t.Setenv("KCB_TEXT2SQL_DICTIONARY_DIR", "/srv/dict")
	t.Setenv("KCB_TEXT2SQL_REDIS_ENABLED", "true")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadWith(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/srv/dict", cfg.Dictionary.Dir)
	assert.Equal(t, "/srv/dict/backups", cfg.Dictionary.BackupDir)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Dictionary: DictionaryConfig{Dir: "./dictionaries"},
			LLM:        LLMConfig{Provider: "openai"},
			RAG:        RAGConfig{ChunkSize: 1000, ChunkOverlap: 200},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"no llm", func(c *Config) { c.LLM.Provider = "none" }, ""},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "bedrock" }, "unsupported llm provider"},
		{"ollama without base url", func(c *Config) { c.LLM.Provider = "ollama" }, "llm.baseURL is required"},
		{"ollama with base url", func(c *Config) {
			c.LLM.Provider = "ollama"
			c.LLM.BaseURL = "http://localhost:11434/v1"
		}, ""},
		{"no dictionary dir", func(c *Config) { c.Dictionary.Dir = "" }, "dictionary.dir is required"},
		{"overlap too large", func(c *Config) { c.RAG.ChunkOverlap = 1000 }, "must be smaller"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
