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

import "regexp"

// mustCompileTemplateRegexp builds the ${{ ... }} occurrence matcher used by
// Interpolate. Matching is non-greedy and spans newlines, so the first
// closing "}}" after an opening "${{" always ends the expression; a literal
// "${{" inside a user string is not supported, per the package doc.
func mustCompileTemplateRegexp() *regexp.Regexp {
	return regexp.MustCompile(`(?s)\$\{\{.*?\}\}`)
}
