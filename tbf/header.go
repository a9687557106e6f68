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

const (
	baseHeaderSize = 16
	tbfVersion     = 2

	flagEnabled = 1 << 0
	flagSticky  = 1 << 1
)

// protectedTrailerFieldOffset is the byte offset, within the encoded TLV
// stream, of the Main/Program TLV's protected_trailer_size field. The Main
// or Program TLV is always first (spec.md §4.4), and its value begins with
// init_fn_offset (4 bytes) followed immediately by protected_trailer_size,
// so this offset never changes. Patching in place here is what lets the
// Layout Planner fix up protected_trailer_size without re-laying out TLVs
// once protected_region_size is known (spec.md §9, "size fixpoint
// avoidance").
const protectedTrailerFieldOffset = 4 + 4

// headerPlan is the TBF Header Builder's output prior to layout: the
// ordered, encoded TLV stream plus the header length it implies.
type headerPlan struct {
	tlvBytes     []byte
	headerLength int
}

// buildHeaderTLVs lays out every TLV in the fixed order of spec.md §4.4,
// with protected_trailer_size left as 0 (patched later by the Layout
// Planner once protected_region_size is known).
func buildHeaderTLVs(layout *AppLayout, opts Options) (*headerPlan, error) {
	var tlvs []tlv

	mainOrProgram, err := buildMainOrProgramTLV(layout, opts)
	if err != nil {
		return nil, err
	}
	tlvs = append(tlvs, mainOrProgram)

	if len(layout.WriteableFlashRegions) > 0 {
		vb := &valueBuilder{}
		for _, r := range layout.WriteableFlashRegions {
			vb.u32(r.Offset).u32(r.Length)
		}
		tlvs = append(tlvs, tlv{Type: tlvWriteableFlashRegions, Value: vb.value()})
	}

	if layout.IsFixedFlash || layout.IsFixedRam {
		ramAddr := uint32(0xFFFFFFFF)
		if layout.IsFixedRam {
			ramAddr = *layout.RamOriginVAddr
		}
		flashAddr := uint32(0xFFFFFFFF)
		if layout.IsFixedFlash {
			flashAddr = layout.FlashLoadVAddr
		}
		vb := (&valueBuilder{}).u32(ramAddr).u32(flashAddr)
		tlvs = append(tlvs, tlv{Type: tlvFixedAddresses, Value: vb.value()})
	}

	if len(opts.Permissions) > 0 {
		tlv, err := buildPermissionsTLV(opts.Permissions)
		if err != nil {
			return nil, err
		}
		tlvs = append(tlvs, tlv)
	}

	if opts.WriteId != 0 || len(opts.ReadIds) > 0 || len(opts.AccessIds) > 0 {
		vb := &valueBuilder{}
		vb.u32(opts.WriteId)
		vb.u32(uint32(len(opts.ReadIds)))
		for _, id := range opts.ReadIds {
			vb.u32(id)
		}
		vb.u32(uint32(len(opts.AccessIds)))
		for _, id := range opts.AccessIds {
			vb.u32(id)
		}
		tlvs = append(tlvs, tlv{Type: tlvPersistentAcl, Value: vb.value()})
	}

	if opts.KernelVersionSet {
		vb := (&valueBuilder{}).u16(opts.KernelMajor).u16(opts.KernelMinor)
		tlvs = append(tlvs, tlv{Type: tlvKernelVersion, Value: vb.value()})
	}

	if opts.PackageName != "" {
		tlvs = append(tlvs, tlv{Type: tlvPackageName, Value: []byte(opts.PackageName)})
	}

	if opts.ShortIdSet {
		vb := (&valueBuilder{}).u32(opts.ShortId)
		tlvs = append(tlvs, tlv{Type: tlvShortId, Value: vb.value()})
	}

	if len(opts.SupportedBoards) > 0 {
		joined := opts.SupportedBoards[0]
		for _, b := range opts.SupportedBoards[1:] {
			joined += "," + b
		}
		tlvs = append(tlvs, tlv{Type: tlvSupportedBoards, Value: []byte(joined)})
	}

	if opts.MinimumFooterSize > 0 {
		tlvs = append(tlvs, tlv{
			Type:  tlvCredentialsFooterSpace,
			Value: make([]byte, opts.MinimumFooterSize),
		})
	}

	tlvBytes := encodeTLVs(tlvs)
	return &headerPlan{
		tlvBytes:     tlvBytes,
		headerLength: baseHeaderSize + len(tlvBytes),
	}, nil
}

func buildMainOrProgramTLV(layout *AppLayout, opts Options) (tlv, error) {
	initFnOffset := layout.EntryVAddr - layout.FlashLoadVAddr

	vb := &valueBuilder{}
	vb.u32(initFnOffset)
	vb.u32(0) // protected_trailer_size placeholder, patched by the Layout Planner
	vb.u32(layout.RamSize)

	if !opts.needsProgram() {
		return tlv{Type: tlvMain, Value: vb.value()}, nil
	}

	vb.u32(uint32(len(layout.Binary))) // binary_end_offset
	vb.u32(opts.AppVersion)
	return tlv{Type: tlvProgram, Value: vb.value()}, nil
}

func buildPermissionsTLV(perms []Permission) (tlv, error) {
	masks := map[uint32]uint64{}
	var order []uint32
	for _, p := range perms {
		if p.Command > 63 {
			return tlv{}, util.FmtTabError(util.ErrInputSemantics,
				"permission command %d for driver %d exceeds the maximum of 63",
				p.Command, p.Driver)
		}
		if _, ok := masks[p.Driver]; !ok {
			order = append(order, p.Driver)
		}
		masks[p.Driver] |= 1 << p.Command
	}

	vb := &valueBuilder{}
	for _, driver := range order {
		vb.u32(driver).u64(masks[driver])
	}
	return tlv{Type: tlvPermissions, Value: vb.value()}, nil
}

// assembleHeaderRegion produces the full header-through-protected-region
// byte range: base header (with header_size, total_size and checksum
// patched), the TLV stream, and zero padding out to protectedRegionSize.
func assembleHeaderRegion(plan *headerPlan, protectedRegionSize int, totalSize uint64, disable bool) []byte {
	region := make([]byte, protectedRegionSize)

	binary.LittleEndian.PutUint16(region[0:2], tbfVersion)
	binary.LittleEndian.PutUint16(region[2:4], uint16(plan.headerLength))
	binary.LittleEndian.PutUint32(region[4:8], uint32(totalSize))

	flags := uint32(flagSticky)
	if !disable {
		flags |= flagEnabled
	}
	binary.LittleEndian.PutUint32(region[8:12], flags)
	binary.LittleEndian.PutUint32(region[12:16], 0) // checksum, computed below

	copy(region[baseHeaderSize:], plan.tlvBytes)

	checksum := headerChecksum(region[:plan.headerLength])
	binary.LittleEndian.PutUint32(region[12:16], checksum)

	return region
}

// headerChecksum XORs every 32-bit little-endian word of header (which must
// be a multiple of 4 bytes long and must have its checksum field already
// zeroed) per spec.md §4.4.
func headerChecksum(header []byte) uint32 {
	var sum uint32
	for i := 0; i+4 <= len(header); i += 4 {
		sum ^= binary.LittleEndian.Uint32(header[i : i+4])
	}
	return sum
}
