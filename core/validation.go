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


package core

import (
	"fmt"
	"strings"
)

// ValidateChunk checks that a chunk can be written to a vector store.
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if strings.TrimSpace(chunk.Content) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}

	if len(chunk.Vector) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyVector)
	}

	return nil
}

// ValidateQuery checks that a query carries a vector and a positive limit.
func ValidateQuery(query *Query) error {
	if query == nil {
		return fmt.Errorf("%w: query is nil", ErrInvalidQuery)
	}

	if len(query.Vector) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, ErrEmptyVector)
	}

	if query.Limit <= 0 {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, ErrInvalidLimit)
	}

	return nil
}
