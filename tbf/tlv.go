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

package tbf

import (
	"encoding/binary"

	"tockos.org/tab/util"
)

// Header TLV type tags. The numeric values do not follow the emission order;
// buildHeaderTLVs emits the TLVs in the fixed order of §4.4.
const (
	tlvMain                   uint16 = 1
	tlvWriteableFlashRegions  uint16 = 2
	tlvPackageName            uint16 = 3
	tlvFixedAddresses         uint16 = 4
	tlvPermissions            uint16 = 5
	tlvPersistentAcl          uint16 = 6
	tlvKernelVersion          uint16 = 7
	tlvProgram                uint16 = 8
	tlvShortId                uint16 = 9
	tlvSupportedBoards        uint16 = 10
	tlvCredentialsFooterSpace uint16 = 11
)

// tlv is one <type><length><value> record. length is always the unpadded
// value length; Encode pads the value to a 4-byte boundary with 0x00.
type tlv struct {
	Type  uint16
	Value []byte
}

func (t tlv) Encode() []byte {
	pad := util.PadTo4(len(t.Value))
	buf := make([]byte, 4+len(t.Value)+pad)
	binary.LittleEndian.PutUint16(buf[0:2], t.Type)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(t.Value)))
	copy(buf[4:], t.Value)
	return buf
}

// EncodeTLV frames an arbitrary <type><length><value> record the same way
// the header builder's TLVs are framed, so the cred package can append
// footer credential TLVs using identical padding rules (spec.md §4.5).
func EncodeTLV(typ uint16, value []byte) []byte {
	return tlv{Type: typ, Value: value}.Encode()
}

func encodeTLVs(tlvs []tlv) []byte {
	var out []byte
	for _, t := range tlvs {
		out = append(out, t.Encode()...)
	}
	return out
}

// valueBuilder accumulates a TLV's value bytes field by field.
type valueBuilder struct {
	buf []byte
}

func (b *valueBuilder) u16(v uint16) *valueBuilder {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

func (b *valueBuilder) u32(v uint32) *valueBuilder {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

func (b *valueBuilder) u64(v uint64) *valueBuilder {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

func (b *valueBuilder) bytes(v []byte) *valueBuilder {
	b.buf = append(b.buf, v...)
	return b
}

func (b *valueBuilder) value() []byte {
	if b.buf == nil {
		return []byte{}
	}
	return b.buf
}
