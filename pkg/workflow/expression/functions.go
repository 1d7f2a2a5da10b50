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

package expression

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var foldCaser = cases.Fold()

// foldEqual performs Unicode-correct case-insensitive equality, used by the
// quote-tolerant string functions.
func foldEqual(a, b string) bool {
	return foldCaser.String(a) == foldCaser.String(b)
}

func lowerFold(s string) string {
	return cases.Lower(language.Und).String(s)
}

// unquote strips a single layer of matching single or double quotes, the
// "quote-tolerant" behavior required of the string functions.
func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func stringContains(s, sub interface{}) bool {
	a, b := unquote(toStr(s)), unquote(toStr(sub))
	return strings.Contains(lowerFold(a), lowerFold(b))
}

func stringStartsWith(s, prefix interface{}) bool {
	a, b := unquote(toStr(s)), unquote(toStr(prefix))
	return strings.HasPrefix(lowerFold(a), lowerFold(b))
}

func stringEndsWith(s, suffix interface{}) bool {
	a, b := unquote(toStr(s)), unquote(toStr(suffix))
	return strings.HasSuffix(lowerFold(a), lowerFold(b))
}

func stringEquals(a, b interface{}) bool {
	return foldEqual(unquote(toStr(a)), unquote(toStr(b)))
}

func isEmpty(s interface{}) bool {
	return strings.TrimSpace(unquote(toStr(s))) == ""
}

func isNotEmpty(s interface{}) bool {
	return !isEmpty(s)
}

func toStr(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
