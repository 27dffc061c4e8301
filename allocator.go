// Copyright 2020-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package protodyn

import "unsafe"

// allocateRepeated is spec.md §4.5's allocator pass: for every REPEATED
// field with a non-zero tally, size its backing List exactly once and
// reset Len to 0 so the parser can append. It also reserves the message's
// unknown-field slice at the scanned count.
//
// Scalar/enum/bool element kinds are allocated straight from the Context's
// Allocator, since they contain no pointers and are safe to hand back as
// raw bytes. STRING/BYTES/MESSAGE elements are allocated as ordinary
// GC-tracked Go slices (see message.go's doc comment) and additionally
// rooted in m.keep.
func allocateRepeated(m *Message, t *tally, alloc allocatorFunc) error {
	for i := range m.desc.Fields {
		f := &m.desc.Fields[i]
		if f.Label != LabelRepeated {
			continue
		}

		count := t.counts[i]
		list := (*List)(m.fieldPtr(i))
		list.Cap = count
		list.Len = 0
		if count == 0 {
			continue
		}

		switch f.Type {
		case TypeString:
			backing := make([]string, count)
			list.Data = unsafe.Pointer(unsafe.SliceData(backing))
			m.keep = append(m.keep, backing)
		case TypeBytes:
			backing := make([][]byte, count)
			list.Data = unsafe.Pointer(unsafe.SliceData(backing))
			m.keep = append(m.keep, backing)
		case TypeMessage:
			backing := make([]*Message, count)
			list.Data = unsafe.Pointer(unsafe.SliceData(backing))
			m.keep = append(m.keep, backing)
		default:
			raw := alloc(count * repeatedEleSize(f.Type))
			if raw == nil {
				return parseErr(errCodeAlloc, 0)
			}
			list.Data = unsafe.Pointer(unsafe.SliceData(raw))
		}
	}

	if t.unknown > 0 {
		m.unknown = make([]MessageUnknownField, 0, t.unknown)
	}

	return nil
}

// allocatorFunc adapts an arena.Allocator.Alloc call so this file does not
// need to import the arena package just for its interface type.
type allocatorFunc func(n int) []byte
