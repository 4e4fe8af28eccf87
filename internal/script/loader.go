package script

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// LoadDir reads every *.json rule file under dir and returns the parsed
// rules. The directory is created when missing. A file that fails to
// parse is logged and skipped; one broken script must not take down the
// rest of the rule set.
func LoadDir(dir string, logger zerolog.Logger) ([]InjectionScript, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scripts directory %s: %w", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scripts directory %s: %w", dir, err)
	}

	var rules []InjectionScript
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		rule, err := loadFile(path)
		if err != nil {
			logger.Error().Str("path", path).Err(err).Msg("failed to load script")
			continue
		}

		logger.Debug().Str("name", rule.Name).Msg("loaded script")
		rules = append(rules, rule)
	}

	return rules, nil
}

func loadFile(path string) (InjectionScript, error) {
	var rule InjectionScript

	data, err := os.ReadFile(path)
	if err != nil {
		return rule, err
	}

	if err := json.Unmarshal(data, &rule); err != nil {
		return rule, err
	}

	if rule.Name == "" {
		return rule, fmt.Errorf("script %s has no name", path)
	}

	return rule, nil
}
