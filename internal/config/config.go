package config

import (
	"os"

	"github.com/go-yaml/yaml"
)

type Config struct {
	Server    Server    `yaml:"server"`
	Jetstream Jetstream `yaml:"jetstream"`
}

type Server struct {
	ListenAddr    string `yaml:"listenAddr"`
	PostgresDsn   string `yaml:"postgresDsn"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`
	MemcachedAddr string `yaml:"memcachedAddr"`
	EnableTrace   bool   `yaml:"enableTrace"`
	TraceEndpoint string `yaml:"traceEndpoint"`
}

type Jetstream struct {
	Endpoints []string `yaml:"endpoints"`
}

func Load(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, err
	}

	if config.Server.ListenAddr == "" {
		config.Server.ListenAddr = ":8000"
	}
	if len(config.Jetstream.Endpoints) == 0 {
		config.Jetstream.Endpoints = []string{
			"wss://jetstream1.us-east.bsky.network/subscribe",
			"wss://jetstream2.us-east.bsky.network/subscribe",
		}
	}

	return config, nil
}
