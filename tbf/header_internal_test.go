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
	"testing"
)

func TestBuildPermissionsTLVPacksMasks(t *testing.T) {
	tv, err := buildPermissionsTLV([]Permission{
		{Driver: 1, Command: 0},
		{Driver: 1, Command: 3},
		{Driver: 2, Command: 5},
	})
	if err != nil {
		t.Fatalf("buildPermissionsTLV: %s", err)
	}

	if len(tv.Value) != 24 {
		t.Fatalf("value length = %d, want 24 (two driver,mask pairs)", len(tv.Value))
	}

	driver1 := binary.LittleEndian.Uint32(tv.Value[0:4])
	mask1 := binary.LittleEndian.Uint64(tv.Value[4:12])
	driver2 := binary.LittleEndian.Uint32(tv.Value[12:16])
	mask2 := binary.LittleEndian.Uint64(tv.Value[16:24])

	if driver1 != 1 || mask1 != 0x9 {
		t.Errorf("first entry = (driver=%d, mask=0x%x), want (1, 0x9)", driver1, mask1)
	}
	if driver2 != 2 || mask2 != 0x20 {
		t.Errorf("second entry = (driver=%d, mask=0x%x), want (2, 0x20)", driver2, mask2)
	}
}

func TestBuildPermissionsTLVRejectsLargeCommand(t *testing.T) {
	if _, err := buildPermissionsTLV([]Permission{{Driver: 1, Command: 64}}); err == nil {
		t.Fatal("expected an error for command > 63")
	}
}

func TestHeaderChecksumSelfCancels(t *testing.T) {
	header := []byte{
		0x02, 0x00, 0x20, 0x00,
		0x30, 0x00, 0x00, 0x00,
		0x03, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}
	sum := headerChecksum(header)
	binary.LittleEndian.PutUint32(header[12:16], sum)

	if headerChecksum(header) != 0 {
		t.Errorf("checksum of finished header is not zero")
	}
}
