// Package script holds the injection rule model and the registry that
// answers which rules apply to a given domain.
package script

import (
	"encoding/json"
	"fmt"
	"slices"
)

// InjectType selects the direction and mechanism of a rule.
type InjectType int

var availableInjectTypes = []string{
	"RequestHeader",
	"RequestBody",
	"ResponseHeader",
	"ResponseBody",
	"JavaScriptInjection",
	"CssInjection",
}

const (
	InjectRequestHeader InjectType = iota
	InjectRequestBody
	InjectResponseHeader
	InjectResponseBody
	InjectJavaScript
	InjectCSS
)

func (t InjectType) String() string {
	if t < 0 || int(t) >= len(availableInjectTypes) {
		return fmt.Sprintf("InjectType(%d)", int(t))
	}
	return availableInjectTypes[t]
}

func (t InjectType) MarshalJSON() ([]byte, error) {
	if t < 0 || int(t) >= len(availableInjectTypes) {
		return nil, fmt.Errorf("unknown inject type %d", int(t))
	}
	return json.Marshal(availableInjectTypes[t])
}

func (t *InjectType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	i := slices.Index(availableInjectTypes, s)
	if i < 0 {
		return fmt.Errorf("unknown inject type %q, expected one of %v", s, availableInjectTypes)
	}

	*t = InjectType(i)
	return nil
}

// InjectionScript is a single named rule. Name is the primary key;
// description, version and author are metadata with no behavior.
// Patterns are immutable once the rule is registered.
type InjectionScript struct {
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Version       string            `json:"version"`
	Author        string            `json:"author"`
	TargetDomains []string          `json:"target_domains"`
	InjectType    InjectType        `json:"inject_type"`
	Payload       string            `json:"payload"`
	Headers       map[string]string `json:"headers"`
	Enabled       bool              `json:"enabled"`
}

// Clone returns an independent copy so registry snapshots never share
// mutable state with callers.
func (s InjectionScript) Clone() InjectionScript {
	c := s
	c.TargetDomains = slices.Clone(s.TargetDomains)
	if s.Headers != nil {
		c.Headers = make(map[string]string, len(s.Headers))
		for k, v := range s.Headers {
			c.Headers[k] = v
		}
	}
	return c
}
