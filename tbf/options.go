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

// Permission is one `--permissions driver,cmd` pair before packing into the
// Permissions TLV's per-driver bitmask (spec.md §4.4 #4).
type Permission struct {
	Driver  uint32
	Command uint32
}

// Options collects every per-ELF, flag-derived input the header builder and
// layout planner need. The CLI layer is responsible for turning repeated
// flags into the ordered slices here (spec.md §9, "map dynamic flag ordering
// to a static pipeline").
type Options struct {
	PackageName     string
	SupportedBoards []string

	AppVersion    uint32
	AppVersionSet bool

	KernelMajor      uint16
	KernelMinor      uint16
	KernelVersionSet bool

	ShortId    uint32
	ShortIdSet bool

	Permissions []Permission

	WriteId   uint32
	ReadIds   []uint32
	AccessIds []uint32

	MinimumFooterSize uint32

	AppHeap    uint32
	AppHeapSet bool

	KernelHeap    uint32
	KernelHeapSet bool

	MinimumRamSize uint32

	// MinimumStack is the --minimum-stack override. When MinimumStackSet is
	// false, Assemble falls back to the ELF's own `_stack_size` absolute
	// symbol (spec.md §4.2 step 4's "stack from ELF or user flag"; see
	// elfStackSize in assemble.go), then to 0.
	MinimumStack    uint32
	MinimumStackSet bool

	Disable bool

	// ProtectedRegionSize, if non-nil, is the user-supplied
	// --protected-region-size override (spec.md §4.3 step 2).
	ProtectedRegionSize *uint32

	// HasFooter must be set true by the caller when any credential TLV
	// will be appended, since that alone forces Program over Main
	// (spec.md §4.4 #1) even when no other Program-only flag is set.
	HasFooter bool
}

// needsProgram reports whether the Program TLV (rather than the simpler
// Main TLV) must be emitted.
func (o Options) needsProgram() bool {
	return o.AppVersionSet || o.KernelVersionSet || o.ShortIdSet || o.HasFooter
}
