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

// Package tbf builds a single Tock Binary Format image from a parsed ELF:
// section selection and linearization (assemble.go), protected-region sizing
// (layout.go), and TLV header synthesis (header.go, tlv.go). The credential
// footer lives in the sibling cred package, which consumes the byte prefix
// Image exposes here.
package tbf

import (
	"math"

	"tockos.org/tab/elf"
	"tockos.org/tab/util"
)

// Image is one per-architecture TBF under construction: the selected binary
// and the TLV header plan, sized and ordered but not yet finalized (the
// footer credential length is not known until the cred package decides
// which credentials to emit).
type Image struct {
	ArchTag             string
	Binary              []byte
	ProtectedRegionSize int
	Disable             bool

	plan *headerPlan
}

// HeaderLength is the number of bytes from the start of the image through
// the end of the TLV stream, before protected-region padding.
func (img *Image) HeaderLength() int {
	return img.plan.headerLength
}

// Build runs the ELF Reader's output through the Binary Assembler, the
// Layout Planner and the TBF Header Builder, producing an Image ready to be
// finalized once the footer's length is known.
func Build(ef *elf.File, opts Options) (*Image, error) {
	layout, err := Assemble(ef, opts)
	if err != nil {
		return nil, err
	}

	plan, protectedRegionSize, err := planLayout(layout, opts)
	if err != nil {
		return nil, err
	}

	return &Image{
		ArchTag:             layout.ArchTag,
		Binary:              layout.Binary,
		ProtectedRegionSize: protectedRegionSize,
		Disable:             opts.Disable,
		plan:                plan,
	}, nil
}

// PrefixForFooterSize returns the header-region-plus-binary bytes with
// total_size and the header checksum patched to account for a footer of
// footerLen bytes. Per spec.md §9 ("credential coverage subtlety"), this
// must happen before any credential's digest is computed, since total_size
// falls within the checksummed and (later) hashed region.
func (img *Image) PrefixForFooterSize(footerLen int) ([]byte, error) {
	totalSize := uint64(img.ProtectedRegionSize) + uint64(len(img.Binary)) + uint64(footerLen)
	if totalSize > math.MaxUint32 {
		return nil, util.FmtTabError(util.ErrLayoutImpossible,
			"total TBF image size %d exceeds a 32-bit size", totalSize)
	}

	region := assembleHeaderRegion(img.plan, img.ProtectedRegionSize, totalSize, img.Disable)
	prefix := make([]byte, 0, len(region)+len(img.Binary))
	prefix = append(prefix, region...)
	prefix = append(prefix, img.Binary...)
	return prefix, nil
}
