/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package cred

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"

	"tockos.org/tab/util"
)

// Credential is one decoded footer TLV. It backs `tab dump`'s footer
// summary, supplementing spec.md's write-only §4.5 with a read path.
type Credential struct {
	Type  uint16
	Value []byte
}

// Name returns the human-readable algorithm name for c's type tag.
func (c Credential) Name() string {
	switch c.Type {
	case TypeSha256:
		return "sha256"
	case TypeSha384:
		return "sha384"
	case TypeSha512:
		return "sha512"
	case TypeRsa4096:
		return "rsa4096"
	case TypeEcdsaP256:
		return "ecdsap256"
	default:
		return "unknown"
	}
}

// ParseFooter decodes every TLV in a footer byte range.
func ParseFooter(data []byte) ([]Credential, error) {
	var out []Credential
	offset := 0
	for offset < len(data) {
		if offset+4 > len(data) {
			return nil, util.FmtTabError(util.ErrInputParse,
				"truncated footer TLV header at offset %d", offset)
		}
		typ := binary.LittleEndian.Uint16(data[offset : offset+2])
		length := int(binary.LittleEndian.Uint16(data[offset+2 : offset+4]))
		valueStart := offset + 4
		if valueStart+length > len(data) {
			return nil, util.FmtTabError(util.ErrInputParse,
				"footer TLV of type %d at offset %d overruns the footer", typ, offset)
		}
		out = append(out, Credential{Type: typ, Value: data[valueStart : valueStart+length]})
		offset = valueStart + util.RoundUp4(length)
	}
	return out, nil
}

// VerifyHash reports whether c is a hash credential and, if so, whether its
// digest matches the hash of covered (spec.md §8: "for every hash credential
// C over bytes B: C.value == hash(alg, B)"). ok is false for non-hash
// credential types.
func (c Credential) VerifyHash(covered []byte) (matches bool, ok bool) {
	switch c.Type {
	case TypeSha256:
		sum := sha256.Sum256(covered)
		return bytes.Equal(c.Value, sum[:]), true
	case TypeSha384:
		sum := sha512.Sum384(covered)
		return bytes.Equal(c.Value, sum[:]), true
	case TypeSha512:
		sum := sha512.Sum512(covered)
		return bytes.Equal(c.Value, sum[:]), true
	default:
		return false, false
	}
}
