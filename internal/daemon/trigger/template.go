// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package trigger

import "regexp"

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// ResolveParameters expands `{{name}}` placeholders in a rule's declared
// Parameters map against a match's regex captures, then the well-known
// message fields (text, username, userId, channelId, messageId, source),
// then Extras. Unresolved names are replaced with the empty string.
func ResolveParameters(params map[string]string, m Match) map[string]string {
	resolved := make(map[string]string, len(params))
	for k, v := range params {
		resolved[k] = resolveTemplate(v, m, nil)
	}
	return resolved
}

// ResolveResponseTemplate expands a rule's ResponseTemplate the same way.
// extras (e.g. {"runId": id}) are consulted after the well-known message
// fields and before Match.Message.Extras, letting the dispatcher splice in
// values only known after dispatch.
func ResolveResponseTemplate(tmpl string, m Match, extras map[string]string) string {
	return resolveTemplate(tmpl, m, extras)
}

func resolveTemplate(tmpl string, m Match, extras map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(token string) string {
		name := placeholderPattern.FindStringSubmatch(token)[1]
		return lookupPlaceholder(name, m, extras)
	})
}

func lookupPlaceholder(name string, m Match, extras map[string]string) string {
	if v, ok := m.Captures[name]; ok {
		return v
	}
	switch name {
	case "text":
		return m.Message.Text
	case "username", "user":
		return m.Message.Username
	case "userId":
		return m.Message.UserID
	case "channelId", "channel":
		return m.Message.Channel
	case "messageId":
		return m.Message.MessageID
	case "source":
		return string(m.Message.Source)
	}
	if v, ok := extras[name]; ok {
		return v
	}
	if v, ok := m.Message.Extras[name]; ok {
		return v
	}
	return ""
}
