// Copyright 2025 Poiesic Systems
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


// Package prompt builds chat prompts from templates with named placeholders.
//
// A Template is an ordered list of role-tagged messages whose text may contain
// {name} placeholders; {{ and }} produce literal braces. Formatting requires a
// value for every placeholder:
//
//	tmpl := prompt.Assistant()
//	msgs, err := tmpl.Format(map[string]any{"question": "What is LCEL?"})
//
// Templates can also be read from YAML:
//
//	name: translator
//	messages:
//	  - role: system
//	    content: Translate the following text into {language}.
//	  - role: user
//	    content: "{text}"
package prompt
