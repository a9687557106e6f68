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
	"math"

	"tockos.org/tab/util"
)

const protectedRegionAlign = 256

// planLayout runs the Layout Planner (spec.md §4.3): it builds the header
// TLV stream once (via buildHeaderTLVs), uses the resulting header_length to
// choose protected_region_size, and patches protected_trailer_size into the
// TLV stream in place.
func planLayout(layout *AppLayout, opts Options) (*headerPlan, int, error) {
	plan, err := buildHeaderTLVs(layout, opts)
	if err != nil {
		return nil, 0, err
	}
	headerLength := plan.headerLength

	protectedRegionSize, err := choosePadding(layout, opts, headerLength)
	if err != nil {
		return nil, 0, err
	}

	trailer := uint32(protectedRegionSize - headerLength)
	binary.LittleEndian.PutUint32(
		plan.tlvBytes[protectedTrailerFieldOffset:protectedTrailerFieldOffset+4],
		trailer)

	return plan, protectedRegionSize, nil
}

func choosePadding(layout *AppLayout, opts Options, headerLength int) (int, error) {
	// Step 2: an explicit --protected-region-size overrides everything else.
	if opts.ProtectedRegionSize != nil {
		n := int(*opts.ProtectedRegionSize)
		if n < headerLength {
			return 0, util.FmtTabError(util.ErrInputSemantics,
				"--protected-region-size %d is smaller than the required header length %d",
				n, headerLength)
		}
		return n, nil
	}

	// Open question (spec.md §9): an ELF-supplied tbf_protected_region_size
	// symbol is preferred over the auto-alignment heuristic when present,
	// but only if it's actually compatible with a fixed-flash app's
	// alignment requirement; a conflict is a hard error rather than a guess.
	if layout.ProtectedRegionSymbol != nil {
		n := int(*layout.ProtectedRegionSymbol)
		if n < headerLength {
			return 0, util.FmtTabError(util.ErrInputSemantics,
				"tbf_protected_region_size symbol value %d is smaller than the required header length %d",
				n, headerLength)
		}
		if layout.IsFixedFlash {
			target := layout.FlashLoadVAddr % protectedRegionAlign
			if uint32(n)%protectedRegionAlign != target {
				return 0, util.FmtTabError(util.ErrLayoutImpossible,
					"tbf_protected_region_size symbol value %d is incompatible with "+
						"fixed-flash alignment of load address 0x%x (mod %d must equal %d)",
					n, layout.FlashLoadVAddr, protectedRegionAlign, target)
			}
		}
		return n, nil
	}

	// Step 3: fixed-flash apps align the protected region so the binary
	// lands exactly at flash_load_vaddr.
	if layout.IsFixedFlash {
		target := int(layout.FlashLoadVAddr % protectedRegionAlign)
		if target == 0 {
			return util.RoundUp4(headerLength), nil
		}
		if target >= headerLength {
			return target, nil
		}
		for k := 1; ; k++ {
			n := target + protectedRegionAlign*k
			if n >= headerLength {
				if n > math.MaxUint32 {
					return 0, util.FmtTabError(util.ErrLayoutImpossible,
						"fixed-flash alignment padding for load address 0x%x exceeds a 32-bit size",
						layout.FlashLoadVAddr)
				}
				return n, nil
			}
		}
	}

	// Step 4: PIC or fixed-RAM-only apps need no padding beyond the header.
	return headerLength, nil
}
