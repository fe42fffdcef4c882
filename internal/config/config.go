package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port    int
	Storage string // "postgres" or "memory"

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	GeminiKey   string
	GeminiModel string
	AITimeout   time.Duration
}

func Load() *Config {
	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil {
		port = 8080
	}

	dbPort, err := strconv.Atoi(os.Getenv("DB_PORT"))
	if err != nil {
		dbPort = 5432
	}

	store := os.Getenv("STORAGE")
	if store == "" {
		store = "postgres"
	}

	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = "gemini-2.5-flash"
	}

	timeout, err := time.ParseDuration(os.Getenv("AI_TIMEOUT"))
	if err != nil || timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Config{
		Port:    port,
		Storage: store,

		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     dbPort,
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		GeminiKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel: model,
		AITimeout:   timeout,
	}
}

func (c *Config) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName,
	)
}
