package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envExpander substitutes ${VAR} references inside YAML string scalars.
// Unquoted scalars are re-typed after substitution so `port: ${CDP_PORT}`
// still decodes as an int.
type envExpander struct {
	lookup  func(string) (string, bool)
	missing map[string]struct{}
}

func newEnvExpander() *envExpander {
	return &envExpander{lookup: os.LookupEnv, missing: make(map[string]struct{})}
}

func (e *envExpander) Expand(raw []byte) (string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return "", fmt.Errorf("parse config: %w", err)
	}
	e.walk(&root)
	out, err := yaml.Marshal(&root)
	if err != nil {
		return "", fmt.Errorf("encode expanded config: %w", err)
	}
	return string(out), nil
}

// Missing lists referenced variables that were not set, sorted.
func (e *envExpander) Missing() []string {
	if len(e.missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(e.missing))
	for name := range e.missing {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *envExpander) walk(node *yaml.Node) {
	switch node.Kind {
	case yaml.MappingNode:
		// keys stay literal
		for i := 1; i < len(node.Content); i += 2 {
			e.walk(node.Content[i])
		}
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, child := range node.Content {
			e.walk(child)
		}
	case yaml.ScalarNode:
		e.scalar(node)
	}
}

func (e *envExpander) scalar(node *yaml.Node) {
	if node.Tag != "" && node.Tag != "!!str" {
		return
	}
	value := os.Expand(node.Value, func(key string) string {
		if val, ok := e.lookup(key); ok {
			return val
		}
		e.missing[key] = struct{}{}
		return ""
	})
	if value == node.Value {
		return
	}
	node.Value = value
	node.Tag = "!!str"
	if node.Style == 0 {
		node.Tag = scalarTag(value)
	}
}

func scalarTag(value string) string {
	if _, err := strconv.ParseInt(value, 10, 64); err == nil {
		return "!!int"
	}
	if _, err := strconv.ParseFloat(value, 64); err == nil && strings.ContainsAny(value, "0123456789") {
		return "!!float"
	}
	switch strings.ToLower(value) {
	case "true", "false":
		return "!!bool"
	}
	return "!!str"
}
