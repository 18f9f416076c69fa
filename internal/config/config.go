package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	TelegramToken    string
	WebhookPublicURL string
	OpenAIKey        string
	Port             string
	DBPath           string

	ChatModel  string
	EmbedModel string

	ChunkSize     int
	ChunkOverlap  int
	RetrievalTopK int
}

func mustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("missing env %s", k)
	}
	return v
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envIntOr(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Fatalf("invalid %s: %q", k, v)
	}
	return n
}

func Load() Config {
	// Local development convenience; deployed instances use real env vars.
	_ = godotenv.Load()

	return Config{
		TelegramToken:    mustEnv("TELEGRAM_BOT_TOKEN"),
		WebhookPublicURL: mustEnv("WEBHOOK_PUBLIC_URL"),
		OpenAIKey:        mustEnv("OPENAI_API_KEY"),
		Port:             envOr("PORT", "9095"),
		DBPath:           envOr("DB_PATH", "/app/data/chat.db"),
		ChatModel:        envOr("OPENAI_CHAT_MODEL", "gpt-4o"),
		EmbedModel:       envOr("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		ChunkSize:        envIntOr("CHUNK_SIZE", 1500),
		ChunkOverlap:     envIntOr("CHUNK_OVERLAP", 250),
		RetrievalTopK:    envIntOr("RETRIEVAL_TOP_K", 4),
	}
}
