package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SystemPromptConfig はsystem_prompt.yamlの構造を定義
type SystemPromptConfig struct {
	System struct {
		Role     string `yaml:"role"`
		Version  string `yaml:"version"`
		Language string `yaml:"language"`
	} `yaml:"system"`

	Benchmarks struct {
		WorldClassOEE float64 `yaml:"world_class_oee"`
		Acceptable    float64 `yaml:"acceptable"`
	} `yaml:"benchmarks"`

	ResponseGuidelines []struct {
		Priority  int    `yaml:"priority"`
		Condition string `yaml:"condition"`
		Action    string `yaml:"action"`
	} `yaml:"response_guidelines"`

	Tone struct {
		Style       string `yaml:"style"`
		Personality string `yaml:"personality"`
	} `yaml:"tone"`

	Constraints []string `yaml:"constraints"`

	SpecialCommands struct {
		Help struct {
			Trigger  []string `yaml:"trigger"`
			Response string   `yaml:"response"`
		} `yaml:"help"`
	} `yaml:"special_commands"`
}

// LoadSystemPrompt はYAMLファイルからシステムプロンプト設定を読み込む
func LoadSystemPrompt(path string) (*SystemPromptConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("システムプロンプト設定ファイルの読み込みに失敗: %w", err)
	}
	return ParseSystemPrompt(data)
}

// ParseSystemPrompt はYAMLをパースします。
func ParseSystemPrompt(data []byte) (*SystemPromptConfig, error) {
	var cfg SystemPromptConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("YAMLのパースに失敗: %w", err)
	}
	if strings.TrimSpace(cfg.System.Role) == "" {
		return nil, fmt.Errorf("system.role が設定されていません")
	}
	return &cfg, nil
}

// DefaultSystemPrompt は設定ファイルが無いときに使う最小構成です。
func DefaultSystemPrompt() *SystemPromptConfig {
	cfg := &SystemPromptConfig{}
	cfg.System.Role = "a manufacturing OEE assistant that answers questions about equipment availability, downtime and failure causes"
	cfg.Benchmarks.WorldClassOEE = 85
	cfg.Benchmarks.Acceptable = 70
	cfg.Constraints = []string{
		"Only use the numbers provided in the data context.",
		"If the data does not answer the question, say so.",
	}
	return cfg
}

// BuildSystemPrompt は設定からシステムプロンプトを構築
func (c *SystemPromptConfig) BuildSystemPrompt() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("You are %s.\n\n", c.System.Role))

	if c.Benchmarks.WorldClassOEE > 0 {
		sb.WriteString("## Benchmarks\n")
		sb.WriteString(fmt.Sprintf("- World-class OEE: %.0f%%\n", c.Benchmarks.WorldClassOEE))
		if c.Benchmarks.Acceptable > 0 {
			sb.WriteString(fmt.Sprintf("- Acceptable: %.0f%%\n", c.Benchmarks.Acceptable))
		}
		sb.WriteString("\n")
	}

	if len(c.ResponseGuidelines) > 0 {
		sb.WriteString("## Response guidelines\n")
		for _, g := range c.ResponseGuidelines {
			sb.WriteString(fmt.Sprintf("%d. %s -> %s\n", g.Priority, g.Condition, g.Action))
		}
		sb.WriteString("\n")
	}

	if c.Tone.Style != "" || c.Tone.Personality != "" {
		sb.WriteString("## Tone\n")
		if c.Tone.Style != "" {
			sb.WriteString(fmt.Sprintf("- Style: %s\n", c.Tone.Style))
		}
		if c.Tone.Personality != "" {
			sb.WriteString(fmt.Sprintf("- Personality: %s\n", c.Tone.Personality))
		}
		sb.WriteString("\n")
	}

	if len(c.Constraints) > 0 {
		sb.WriteString("## Constraints\n")
		for _, constraint := range c.Constraints {
			sb.WriteString(fmt.Sprintf("- %s\n", constraint))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("If a chart would help, you may append a [CHART]...[/CHART] block; it is removed before display.\n")
	return sb.String()
}

// CheckSpecialCommand は特別なコマンドかチェック
func (c *SystemPromptConfig) CheckSpecialCommand(message string) (bool, string) {
	lowerMsg := strings.ToLower(strings.TrimSpace(message))
	for _, trigger := range c.SpecialCommands.Help.Trigger {
		if lowerMsg == strings.ToLower(trigger) {
			return true, c.SpecialCommands.Help.Response
		}
	}
	return false, ""
}
