package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合客户端与本地开发服务的配置项。
type Config struct {
	Client ClientConfig
	Server ServerConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	client, err := loadClientConfig()
	if err != nil {
		return nil, err
	}

	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Client: client, Server: server}, nil
}

// ClientConfig describes how to reach the backend and where the session
// token survives restarts.
type ClientConfig struct {
	BaseURL     string
	TokenFile   string
	HTTPTimeout time.Duration
}

func loadClientConfig() (ClientConfig, error) {
	baseURL := getEnvOrDefault("RETROGPT_BASE_URL", "http://localhost:4002")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return ClientConfig{}, fmt.Errorf("invalid RETROGPT_BASE_URL value %q: must start with http:// or https://", baseURL)
	}

	timeoutSeconds := 30
	if override, err := parseOptionalIntEnv("RETROGPT_HTTP_TIMEOUT"); err != nil {
		return ClientConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return ClientConfig{}, fmt.Errorf("invalid RETROGPT_HTTP_TIMEOUT value %d: must be positive", *override)
		}
		timeoutSeconds = *override
	}

	return ClientConfig{
		BaseURL:     baseURL,
		TokenFile:   strings.TrimSpace(os.Getenv("RETROGPT_TOKEN_FILE")),
		HTTPTimeout: time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// ServerConfig 描述本地开发服务的监听地址。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "4002"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":4002" 或 "127.0.0.1:4002"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
