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

package bundle

import (
	"bytes"

	"github.com/BurntSushi/toml"

	"tockos.org/tab/util"
)

// Metadata is the bundle-level `metadata.toml` archive member (spec.md
// §4.6): the one piece of the TAB that isn't a per-architecture TBF image.
type Metadata struct {
	Name                     string `toml:"name"`
	MinimumTockKernelVersion string `toml:"minimum-tock-kernel-version,omitempty"`

	// BuildTime is omitted entirely in deterministic mode, since
	// spec.md §8's determinism property requires identical inputs to
	// produce a byte-identical TAB regardless of when it was built.
	BuildTime string `toml:"build-time,omitempty"`
}

// Encode renders m as TOML bytes.
func (m *Metadata) Encode() ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := toml.NewEncoder(buf).Encode(m); err != nil {
		return nil, util.FmtChildTabError(util.ErrIoFailure, err,
			"cannot encode bundle metadata: %s", err.Error())
	}
	return buf.Bytes(), nil
}
