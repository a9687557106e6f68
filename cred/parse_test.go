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

package cred_test

import (
	"testing"

	"tockos.org/tab/cred"
)

func TestParseFooterAndVerifyHash(t *testing.T) {
	covered := []byte("header-and-binary-bytes")
	req := cred.Request{Sha256: true, Sha512: true}

	footer, err := cred.Build(covered, req)
	if err != nil {
		t.Fatalf("Build: %s", err)
	}

	creds, err := cred.ParseFooter(footer)
	if err != nil {
		t.Fatalf("ParseFooter: %s", err)
	}
	if len(creds) != 2 {
		t.Fatalf("got %d credentials, want 2", len(creds))
	}

	if creds[0].Type != cred.TypeSha256 || creds[0].Name() != "sha256" {
		t.Errorf("creds[0] = %+v, want a sha256 credential", creds[0])
	}
	if creds[1].Type != cred.TypeSha512 || creds[1].Name() != "sha512" {
		t.Errorf("creds[1] = %+v, want a sha512 credential", creds[1])
	}

	for _, c := range creds {
		matches, ok := c.VerifyHash(covered)
		if !ok {
			t.Errorf("VerifyHash: %s credential reported not a hash type", c.Name())
		}
		if !matches {
			t.Errorf("VerifyHash: %s credential did not match", c.Name())
		}
	}
}

func TestVerifyHashDetectsMismatch(t *testing.T) {
	footer, err := cred.Build([]byte("original"), cred.Request{Sha256: true})
	if err != nil {
		t.Fatalf("Build: %s", err)
	}
	creds, err := cred.ParseFooter(footer)
	if err != nil {
		t.Fatalf("ParseFooter: %s", err)
	}

	matches, ok := creds[0].VerifyHash([]byte("tampered"))
	if !ok {
		t.Fatal("VerifyHash reported not a hash type")
	}
	if matches {
		t.Error("VerifyHash matched against tampered bytes")
	}
}

func TestVerifyHashNotApplicableToSignatureCredential(t *testing.T) {
	c := cred.Credential{Type: cred.TypeRsa4096, Value: make([]byte, 1024)}
	if _, ok := c.VerifyHash([]byte("anything")); ok {
		t.Error("VerifyHash should report not-applicable for a signature credential")
	}
}
