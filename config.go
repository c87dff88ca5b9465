package ragstream

import (
	"fmt"
	"log"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config carries everything the serve command and the session layer need,
// decoded from the environment.
type Config struct {
	Addr          string        `env:"RAGSTREAM_ADDR,default=:8080"`
	OpenAIAPIKey  string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string        `env:"OPENAI_BASE_URL"`
	Model         string        `env:"RAGSTREAM_MODEL,default=gpt-4o-mini"`
	PostgresURI   string        `env:"POSTGRES_URI"`
	EventLogPath  string        `env:"RAGSTREAM_EVENT_LOG"`
	GitHubToken   string        `env:"GITHUB_TOKEN"`
	// CloseWait is the hard upper bound a session stop waits for the
	// transport to drain before forcing resource release.
	CloseWait time.Duration `env:"SESSION_CLOSE_WAIT,default=5s"`
}

// LoadConfig reads .env when present and falls back to process environment
// variables.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Error loading .env file, falling back to environment variables")
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
