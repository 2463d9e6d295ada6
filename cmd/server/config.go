package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pagesmith-dev/pagesmith/internal/llm"
	"gopkg.in/yaml.v3"
)

// config is the YAML configuration file. Every field is optional; credentials
// come from the environment and everything else has a sensible default.
type config struct {
	Port                 string `yaml:"port"`
	DataDir              string `yaml:"dataDir"`
	StreamTimeoutSeconds int    `yaml:"streamTimeoutSeconds"`
	SystemPrompt         string `yaml:"systemPrompt"`

	GroqModel   string `yaml:"groqModel"`
	OpenAIModel string `yaml:"openaiModel"`
	OllamaModel string `yaml:"ollamaModel"`
}

func defaultConfig() config {
	return config{
		Port:    "8080",
		DataDir: "data",
	}
}

// loadConfig reads the YAML file at path, falling back to the defaults when
// the file does not exist. Environment variables PORT and DATA_DIR override
// the file.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return config{}, fmt.Errorf("open config file: %w", err)
	default:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return config{}, fmt.Errorf("decode config file: %w", err)
		}
		if cfg.Port == "" {
			cfg.Port = defaultConfig().Port
		}
		if cfg.DataDir == "" {
			cfg.DataDir = defaultConfig().DataDir
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}

	return cfg, nil
}

// credentials reads the provider API keys from the environment. The
// precedence between them is decided at request time by llm.Select.
func credentials() llm.Credentials {
	return llm.Credentials{
		GroqAPIKey:   os.Getenv("GROQ_API_KEY"),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		OllamaHost:   os.Getenv("OLLAMA_HOST"),
	}
}

func (c config) options() llm.Options {
	return llm.Options{
		GroqModel:    c.GroqModel,
		OpenAIModel:  c.OpenAIModel,
		OllamaModel:  c.OllamaModel,
		SystemPrompt: c.SystemPrompt,
	}
}

// streamTimeout converts the configured seconds into a duration. Zero lets
// the orchestrator fall back to its default.
func (c config) streamTimeout() time.Duration {
	return time.Duration(c.StreamTimeoutSeconds) * time.Second
}

func (c config) historyPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

func (c config) accountsPath() string {
	return filepath.Join(c.DataDir, "accounts.db")
}
