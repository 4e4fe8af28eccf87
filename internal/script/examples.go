package script

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// exampleScripts are seeded into a fresh scripts directory so users have
// working templates to copy from. All ship disabled.
func exampleScripts() []InjectionScript {
	return []InjectionScript{
		{
			Name:          "custom-headers",
			Description:   "Inject custom headers for debugging",
			Version:       "1.0.0",
			Author:        "spliceproxy",
			TargetDomains: []string{"*.example.com"},
			InjectType:    InjectRequestHeader,
			Headers: map[string]string{
				"X-Debug": "true",
				"X-Proxy": "spliceproxy",
			},
			Enabled: false,
		},
		{
			Name:          "debug-console",
			Description:   "Inject debug console for web debugging",
			Version:       "1.0.0",
			Author:        "spliceproxy",
			TargetDomains: []string{"*"},
			InjectType:    InjectJavaScript,
			Payload: `
console.log('spliceproxy debug console loaded');
window.spliceproxy = {
    debug: function(msg) {
        console.log('[SPLICEPROXY]', msg);
    },
    getInfo: function() {
        return {
            userAgent: navigator.userAgent,
            url: window.location.href,
            timestamp: new Date().toISOString()
        };
    }
};
`,
			Headers: map[string]string{},
			Enabled: false,
		},
		{
			Name:          "cors-bypass",
			Description:   "Add CORS headers to responses",
			Version:       "1.0.0",
			Author:        "spliceproxy",
			TargetDomains: []string{"*"},
			InjectType:    InjectResponseHeader,
			Headers: map[string]string{
				"Access-Control-Allow-Origin":  "*",
				"Access-Control-Allow-Methods": "GET, POST, PUT, DELETE, OPTIONS",
				"Access-Control-Allow-Headers": "Content-Type, Authorization",
			},
			Enabled: false,
		},
	}
}

// WriteExamples writes the example rule files into dir, skipping any
// file that already exists so user edits survive restarts.
func WriteExamples(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, rule := range exampleScripts() {
		path := filepath.Join(dir, fmt.Sprintf("%s.json", rule.Name))
		if _, err := os.Stat(path); err == nil {
			continue
		}

		data, err := json.MarshalIndent(rule, "", "  ")
		if err != nil {
			return err
		}

		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write example script %s: %w", path, err)
		}
	}

	return nil
}
