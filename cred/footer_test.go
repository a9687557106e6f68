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
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"math/big"
	"testing"

	"tockos.org/tab/cred"
)

func pemEncodeRSA(t *testing.T, key *rsa.PrivateKey) []byte {
	t.Helper()
	der := x509.MarshalPKCS1PrivateKey(key)
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der})
}

func pemEncodeEC(t *testing.T, key *ecdsa.PrivateKey) []byte {
	t.Helper()
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalECPrivateKey: %s", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
}

func TestParsePrivateKeyRSA(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %s", err)
	}

	key, err := cred.BuildSignKey(pemEncodeRSA(t, priv))
	if err != nil {
		t.Fatalf("BuildSignKey: %s", err)
	}
	if key.Rsa == nil {
		t.Fatal("expected an RSA key")
	}
}

func TestParsePrivateKeyECDSA(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %s", err)
	}

	key, err := cred.BuildSignKey(pemEncodeEC(t, priv))
	if err != nil {
		t.Fatalf("BuildSignKey: %s", err)
	}
	if key.Ec == nil {
		t.Fatal("expected an ECDSA key")
	}
}

func TestParsePrivateKeyRejectsUnsupportedCurve(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %s", err)
	}

	if _, err := cred.BuildSignKey(pemEncodeEC(t, priv)); err == nil {
		t.Fatal("expected an error for a P-384 key")
	}
}

func TestBuildSha256(t *testing.T) {
	covered := []byte("header-and-binary-bytes")
	req := cred.Request{Sha256: true}

	footer, err := cred.Build(covered, req)
	if err != nil {
		t.Fatalf("Build: %s", err)
	}

	wantLen, err := req.FooterLength()
	if err != nil {
		t.Fatalf("FooterLength: %s", err)
	}
	if len(footer) != wantLen {
		t.Fatalf("footer length = %d, want %d", len(footer), wantLen)
	}

	typ := binary.LittleEndian.Uint16(footer[0:2])
	length := binary.LittleEndian.Uint16(footer[2:4])
	if typ != cred.TypeSha256 {
		t.Errorf("type = %d, want %d", typ, cred.TypeSha256)
	}
	if length != sha256.Size {
		t.Errorf("length = %d, want %d", length, sha256.Size)
	}

	want := sha256.Sum256(covered)
	if string(footer[4:4+sha256.Size]) != string(want[:]) {
		t.Errorf("digest mismatch")
	}
}

func TestBuildMultipleHashesOrder(t *testing.T) {
	covered := []byte("header-and-binary-bytes")
	req := cred.Request{Sha256: true, Sha384: true, Sha512: true}

	footer, err := cred.Build(covered, req)
	if err != nil {
		t.Fatalf("Build: %s", err)
	}

	wantLen, err := req.FooterLength()
	if err != nil {
		t.Fatalf("FooterLength: %s", err)
	}
	if len(footer) != wantLen {
		t.Fatalf("footer length = %d, want %d", len(footer), wantLen)
	}

	off := 0
	for _, want := range []struct {
		typ uint16
		len uint16
	}{
		{cred.TypeSha256, sha256.Size},
		{cred.TypeSha384, sha512.Size384},
		{cred.TypeSha512, sha512.Size},
	} {
		typ := binary.LittleEndian.Uint16(footer[off : off+2])
		length := binary.LittleEndian.Uint16(footer[off+2 : off+4])
		if typ != want.typ || length != want.len {
			t.Fatalf("at offset %d: got (type=%d, length=%d), want (type=%d, length=%d)",
				off, typ, length, want.typ, want.len)
		}
		off += 4 + int(length)
	}
}

// rsaSigAndModulus splits an RSA footer TLV's value into its fixed-width
// signature and modulus fields.
func rsaSigAndModulus(value []byte) (sig, modulus []byte) {
	return value[:512], value[512:1024]
}

func TestBuildRsa4096SignatureVerifies(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %s", err)
	}
	key := &cred.SignKey{Rsa: priv}

	covered := []byte("header-and-binary-bytes")
	req := cred.Request{Rsa4096Key: key}
	footer, err := cred.Build(covered, req)
	if err != nil {
		t.Fatalf("Build: %s", err)
	}

	wantLen, err := req.FooterLength()
	if err != nil {
		t.Fatalf("FooterLength: %s", err)
	}
	if len(footer) != wantLen {
		t.Fatalf("footer length = %d, want %d", len(footer), wantLen)
	}

	sig, modulus := rsaSigAndModulus(footer[4:])

	// Both fields are left-padded to 512 bytes; a 2048-bit key's actual
	// modulus and signature are 256 bytes, so only the trailing 256 bytes
	// of each are non-zero.
	nBytes := priv.PublicKey.N.Bytes()
	gotN := new(big.Int).SetBytes(modulus)
	if gotN.Cmp(priv.PublicKey.N) != 0 {
		t.Fatalf("embedded modulus does not match the signing key's public modulus")
	}
	_ = nBytes

	digest := sha512.Sum512(covered)
	sigTrimmed := sig[len(sig)-256:]
	if err := rsa.VerifyPKCS1v15(&priv.PublicKey, crypto.SHA512, digest[:], sigTrimmed); err != nil {
		t.Errorf("signature does not verify: %s", err)
	}
}

func TestBuildEcdsaP256SignatureVerifies(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %s", err)
	}
	key := &cred.SignKey{Ec: priv}

	covered := []byte("header-and-binary-bytes")
	req := cred.Request{EcdsaP256Key: key}
	footer, err := cred.Build(covered, req)
	if err != nil {
		t.Fatalf("Build: %s", err)
	}

	wantLen, err := req.FooterLength()
	if err != nil {
		t.Fatalf("FooterLength: %s", err)
	}
	if len(footer) != wantLen {
		t.Fatalf("footer length = %d, want %d", len(footer), wantLen)
	}

	value := footer[4:]
	r := new(big.Int).SetBytes(value[0:32])
	s := new(big.Int).SetBytes(value[32:64])
	x := new(big.Int).SetBytes(value[64:96])
	y := new(big.Int).SetBytes(value[96:128])

	if x.Cmp(priv.PublicKey.X) != 0 || y.Cmp(priv.PublicKey.Y) != 0 {
		t.Fatalf("embedded public key does not match the signing key")
	}

	digest := sha256.Sum256(covered)
	if !ecdsa.Verify(&priv.PublicKey, digest[:], r, s) {
		t.Errorf("signature does not verify")
	}
}

func TestFooterLengthRejectsRsaKeyOnEcdsaField(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %s", err)
	}

	req := cred.Request{EcdsaP256Key: &cred.SignKey{Rsa: priv}}
	if _, err := req.FooterLength(); err == nil {
		t.Fatal("expected an error for a non-ECDSA key in EcdsaP256Key")
	}
}
