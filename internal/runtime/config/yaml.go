package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAMLFile reads a YAML document into a pool. Nested mappings are
// flattened with "_", so
//
//	http:
//	  port: 8080
//
// becomes the key http_port.
func LoadYAMLFile(path string) (Pool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes a YAML document into a flat pool.
func ParseYAML(data []byte) (Pool, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	pool := NewPool()
	flatten(pool, "", doc)
	return pool, nil
}

func flatten(pool Pool, prefix string, node map[string]any) {
	for key, value := range node {
		if prefix != "" {
			key = prefix + "_" + key
		}
		if nested, ok := value.(map[string]any); ok {
			flatten(pool, key, nested)
			continue
		}
		pool.Add(key, value)
	}
}
