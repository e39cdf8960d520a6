package reviewer

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/planward/planward/internal/planning/domain"
)

type seedFile struct {
	Rules []seedRule `yaml:"rules"`
}

type seedRule struct {
	Kind       string             `yaml:"kind"`
	Tag        string             `yaml:"tag"`
	Confidence float64            `yaml:"confidence"`
	Params     map[string]float64 `yaml:"params"`
}

// LoadSeedRules parses a YAML rule file into domain rules.
func LoadSeedRules(path string) ([]*domain.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed rules: %w", err)
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse seed rules: %w", err)
	}

	rules := make([]*domain.Rule, 0, len(file.Rules))
	for i, seed := range file.Rules {
		rule, err := domain.NewRule(domain.RuleKind(seed.Kind), seed.Tag, seed.Params, seed.Confidence)
		if err != nil {
			return nil, fmt.Errorf("seed rule %d (%s): %w", i, seed.Kind, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// SeedRules loads the YAML file at path and stores any rule whose kind and
// tag combination is not present yet. Already learned rules win over seeds.
func SeedRules(ctx context.Context, repo domain.RuleRepository, path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	seeds, err := LoadSeedRules(path)
	if err != nil {
		return err
	}

	existing, err := repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}

	present := make(map[string]bool, len(existing))
	for _, rule := range existing {
		present[string(rule.Kind())+"/"+rule.TaskTag()] = true
	}

	seeded := 0
	for _, rule := range seeds {
		key := string(rule.Kind()) + "/" + rule.TaskTag()
		if present[key] {
			continue
		}
		if err := repo.Save(ctx, rule); err != nil {
			return fmt.Errorf("save seed rule %s: %w", key, err)
		}
		present[key] = true
		seeded++
	}

	if seeded > 0 {
		logger.Info("seed rules loaded", "path", path, "seeded", seeded)
	}
	return nil
}
