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


package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/chainlab/core"
)

// Key prefixes for different data types
const (
	chunkPrefix  = "chunk:"
	sourcePrefix = "chunksrc:"
	manifestKey  = "manifest"
)

// makeChunkKey generates a key for a chunk by ID.
func makeChunkKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s%d", chunkPrefix, id))
}

// makeSourceKey generates a composite key for the source index.
// Format: prefix:source\x00id
func makeSourceKey(source string, id core.ID) []byte {
	prefix := makePartialSourceKey(source)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makePartialSourceKey generates the prefix shared by every chunk of source.
func makePartialSourceKey(source string) []byte {
	buf := make([]byte, 0, len(sourcePrefix)+len(source)+1)
	buf = append(buf, sourcePrefix...)
	buf = append(buf, source...)
	return append(buf, 0)
}

// idFromSourceKey extracts the chunk ID from a source index key.
func idFromSourceKey(key []byte) (core.ID, bool) {
	if len(key) < 8 {
		return 0, false
	}
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:])), true
}
