// Package inject applies injection rules to a mutable message
// representation. Body and script splicing is textual and anchor-based
// on purpose: it assumes HTML payloads and trades correctness on
// malformed or atypical documents for simplicity. Upgrading to real HTML
// parsing would change observable behavior on documents with multiple
// anchors and is out of scope.
package inject

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/spliceproxy/spliceproxy/internal/script"
)

// Anchors used as insertion points for spliced content.
const (
	headAnchor = "</head>"
	bodyAnchor = "</body>"
)

// Message is the engine's working representation of one request or
// response: a lower-cased header map and the body as text. A Message is
// exclusively owned by the exchange being processed and is mutated in
// place.
type Message struct {
	Headers map[string]string
	Body    string
}

func NewMessage() *Message {
	return &Message{Headers: make(map[string]string)}
}

// Result reports the outcome of one engine pass. JavaScript and CSS are
// only populated in the request direction, where the caller decides how
// client-side script/style content is placed. A Result does not outlive
// the call that produced it.
type Result struct {
	Modified   bool
	JavaScript *string
	CSS        *string
}

// Engine runs the matching rules against a message. The engine itself
// never fails: rule-level problems (empty payload, missing anchor) are
// no-ops, and I/O level failures belong to the caller.
type Engine struct {
	registry *script.Registry
	logger   zerolog.Logger
}

func NewEngine(registry *script.Registry, logger zerolog.Logger) *Engine {
	return &Engine{registry: registry, logger: logger}
}

// ApplyRequest runs the request-direction pass for the domain. Rules are
// applied in registry order; on overlapping header keys, a later rule
// overwrites an earlier one.
func (e *Engine) ApplyRequest(domain string, msg *Message) Result {
	var res Result

	for _, rule := range e.registry.ForDomain(domain) {
		switch rule.InjectType {
		case script.InjectRequestHeader:
			e.mergeHeaders(&res, rule, msg)

		case script.InjectRequestBody:
			if rule.Payload == "" {
				continue
			}
			msg.Body += rule.Payload
			res.Modified = true

		case script.InjectJavaScript:
			// Surfaced to the caller; the engine does not splice
			// request bodies for client-side content.
			if rule.Payload == "" {
				continue
			}
			payload := rule.Payload
			res.JavaScript = &payload
			res.Modified = true

		case script.InjectCSS:
			if rule.Payload == "" {
				continue
			}
			payload := rule.Payload
			res.CSS = &payload
			res.Modified = true

		default:
			// Response-direction types are ignored here.
			continue
		}

		e.logger.Debug().
			Str("rule", rule.Name).
			Str("domain", domain).
			Msg("applied request rule")
	}

	return res
}

// ApplyResponse runs the response-direction pass for the domain.
func (e *Engine) ApplyResponse(domain string, msg *Message) Result {
	var res Result

	for _, rule := range e.registry.ForDomain(domain) {
		switch rule.InjectType {
		case script.InjectResponseHeader:
			e.mergeHeaders(&res, rule, msg)

		case script.InjectResponseBody:
			if rule.Payload == "" {
				continue
			}
			if strings.Contains(msg.Body, bodyAnchor) {
				// Every occurrence, not only the first.
				msg.Body = strings.ReplaceAll(msg.Body, bodyAnchor, rule.Payload+bodyAnchor)
			} else {
				msg.Body += rule.Payload
			}
			res.Modified = true

		case script.InjectJavaScript:
			// Without the anchor the rule has no effect; there is no
			// fallback append for script content.
			if rule.Payload == "" || !strings.Contains(msg.Body, headAnchor) {
				continue
			}
			tag := "<script>" + rule.Payload + "</script>"
			msg.Body = strings.ReplaceAll(msg.Body, headAnchor, tag+headAnchor)
			res.Modified = true

		case script.InjectCSS:
			if rule.Payload == "" || !strings.Contains(msg.Body, headAnchor) {
				continue
			}
			tag := "<style>" + rule.Payload + "</style>"
			msg.Body = strings.ReplaceAll(msg.Body, headAnchor, tag+headAnchor)
			res.Modified = true

		default:
			continue
		}

		e.logger.Debug().
			Str("rule", rule.Name).
			Str("domain", domain).
			Msg("applied response rule")
	}

	return res
}

func (e *Engine) mergeHeaders(res *Result, rule script.InjectionScript, msg *Message) {
	for name, value := range rule.Headers {
		msg.Headers[strings.ToLower(name)] = value
		res.Modified = true
	}
}
