package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// mergeFile overlays the non-zero values of a YAML file onto c.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	overlayString(&c.Provider, file.Provider)
	overlayString(&c.OpenAIApiKey, file.OpenAIApiKey)
	overlayString(&c.GoogleApiKey, file.GoogleApiKey)
	overlayString(&c.ChatModel, file.ChatModel)
	overlayString(&c.EmbeddingModel, file.EmbeddingModel)
	overlayString(&c.VectorBackend, file.VectorBackend)
	overlayString(&c.DatabaseURL, file.DatabaseURL)
	overlayString(&c.ChromaURL, file.ChromaURL)
	overlayString(&c.Port, file.Port)

	if file.Temperature != 0 {
		c.Temperature = file.Temperature
	}
	if file.CrawlRPS != 0 {
		c.CrawlRPS = file.CrawlRPS
	}
	if file.CallTimeout != 0 {
		c.CallTimeout = file.CallTimeout
	}
	for _, p := range []struct {
		dst *int
		src int
	}{
		{&c.ChunkSize, file.ChunkSize},
		{&c.ChunkOverlap, file.ChunkOverlap},
		{&c.CrawlConcurrency, file.CrawlConcurrency},
		{&c.MaxPages, file.MaxPages},
		{&c.TopK, file.TopK},
		{&c.AnswerWorkers, file.AnswerWorkers},
	} {
		if p.src != 0 {
			*p.dst = p.src
		}
	}
	return nil
}

func overlayString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}
