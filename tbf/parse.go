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

// ParsedTLV is one decoded header TLV, unpadding already applied.
type ParsedTLV struct {
	Type  uint16 `json:"type"`
	Value []byte `json:"-"`
}

// ParsedHeader is the decoded form of a TBF base header and its TLV stream,
// the read-side counterpart of headerPlan. It backs the `tab dump` command
// (a supplemented feature: spec.md describes only the write path).
type ParsedHeader struct {
	Version      uint16      `json:"version"`
	HeaderLength uint16      `json:"header_size"`
	TotalSize    uint32      `json:"total_size"`
	Flags        uint32      `json:"flags"`
	Checksum     uint32      `json:"checksum"`
	TLVs         []ParsedTLV `json:"tlvs"`

	ProtectedTrailerSize uint32 `json:"protected_trailer_size"`
	MinimumRamSize       uint32 `json:"minimum_ram_size"`

	HasBinaryEndOffset bool   `json:"has_binary_end_offset"`
	BinaryEndOffset    uint32 `json:"binary_end_offset,omitempty"`
	AppVersion         uint32 `json:"app_version,omitempty"`
}

// ParseHeader decodes the base header and TLV stream at the start of data.
func ParseHeader(data []byte) (*ParsedHeader, error) {
	if len(data) < baseHeaderSize {
		return nil, util.FmtTabError(util.ErrInputParse,
			"image is only %d bytes, shorter than the %d-byte base header",
			len(data), baseHeaderSize)
	}

	h := &ParsedHeader{
		Version:      binary.LittleEndian.Uint16(data[0:2]),
		HeaderLength: binary.LittleEndian.Uint16(data[2:4]),
		TotalSize:    binary.LittleEndian.Uint32(data[4:8]),
		Flags:        binary.LittleEndian.Uint32(data[8:12]),
		Checksum:     binary.LittleEndian.Uint32(data[12:16]),
	}

	if int(h.HeaderLength) > len(data) {
		return nil, util.FmtTabError(util.ErrInputParse,
			"declared header_size %d exceeds the %d available bytes", h.HeaderLength, len(data))
	}

	offset := baseHeaderSize
	for offset < int(h.HeaderLength) {
		if offset+4 > int(h.HeaderLength) {
			return nil, util.FmtTabError(util.ErrInputParse,
				"truncated TLV header at offset %d", offset)
		}
		typ := binary.LittleEndian.Uint16(data[offset : offset+2])
		length := int(binary.LittleEndian.Uint16(data[offset+2 : offset+4]))
		valueStart := offset + 4
		if valueStart+length > int(h.HeaderLength) {
			return nil, util.FmtTabError(util.ErrInputParse,
				"TLV of type %d at offset %d overruns header_size", typ, offset)
		}
		value := data[valueStart : valueStart+length]
		h.TLVs = append(h.TLVs, ParsedTLV{Type: typ, Value: value})

		if typ == tlvMain || typ == tlvProgram {
			if len(value) < 12 {
				return nil, util.FmtTabError(util.ErrInputParse,
					"Main/Program TLV value is only %d bytes", len(value))
			}
			h.ProtectedTrailerSize = binary.LittleEndian.Uint32(value[4:8])
			h.MinimumRamSize = binary.LittleEndian.Uint32(value[8:12])
			if typ == tlvProgram {
				if len(value) < 20 {
					return nil, util.FmtTabError(util.ErrInputParse,
						"Program TLV value is only %d bytes", len(value))
				}
				h.HasBinaryEndOffset = true
				h.BinaryEndOffset = binary.LittleEndian.Uint32(value[12:16])
				h.AppVersion = binary.LittleEndian.Uint32(value[16:20])
			}
		}

		offset = valueStart + util.RoundUp4(length)
	}

	return h, nil
}

// ChecksumValid reports whether data's header (the first h.HeaderLength
// bytes) XORs to zero as u32 words, the invariant spec.md §8 requires.
func (h *ParsedHeader) ChecksumValid(data []byte) bool {
	if int(h.HeaderLength) > len(data) {
		return false
	}
	return headerChecksum(data[:h.HeaderLength]) == 0
}

// ParsedImage is a fully decoded TBF image: header, the selected binary
// bytes, and whatever trailing bytes make up the credential footer.
type ParsedImage struct {
	Header *ParsedHeader
	Binary []byte
	Footer []byte
}

// Parse decodes a complete TBF image from data. The binary/footer boundary
// is only recoverable when the header carries a Program TLV (binary_end_
// offset); BuildImage always emits one whenever a footer is requested
// (Options.needsProgram includes HasFooter), so this never loses information
// for an image this package produced.
func Parse(data []byte) (*ParsedImage, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	protectedRegionSize := int(h.HeaderLength) + int(h.ProtectedTrailerSize)
	if protectedRegionSize > int(h.TotalSize) || int(h.TotalSize) > len(data) {
		return nil, util.FmtTabError(util.ErrInputParse,
			"image layout is inconsistent: header_size=%d protected_trailer_size=%d total_size=%d len=%d",
			h.HeaderLength, h.ProtectedTrailerSize, h.TotalSize, len(data))
	}

	rest := data[protectedRegionSize:h.TotalSize]

	img := &ParsedImage{Header: h}
	if h.HasBinaryEndOffset {
		if int(h.BinaryEndOffset) > len(rest) {
			return nil, util.FmtTabError(util.ErrInputParse,
				"binary_end_offset %d exceeds the %d bytes available", h.BinaryEndOffset, len(rest))
		}
		img.Binary = rest[:h.BinaryEndOffset]
		img.Footer = rest[h.BinaryEndOffset:]
	} else {
		img.Binary = rest
	}

	return img, nil
}
