// Copyright (c) 2026 John Earle
//
// Licensed under the Business Source License 1.1 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://github.com/yourusername/bcem/blob/main/LICENSE
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ticket

import "strings"

const cidPrefix = "cid:"

// StripCID removes the "cid:" prefix inline attachments are named with.
// The comparison is case-insensitive; other names pass through unchanged.
func StripCID(name string) string {
	if len(name) >= len(cidPrefix) && strings.EqualFold(name[:len(cidPrefix)], cidPrefix) {
		return name[len(cidPrefix):]
	}
	return name
}

// AnswerPreview returns the reply text without the quoted history the mail
// server appends after the first blank line break.
func AnswerPreview(answer string) string {
	if i := strings.Index(answer, "<br><br>"); i >= 0 {
		return answer[:i]
	}
	return answer
}
