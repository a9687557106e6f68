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

package cred

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"

	"tockos.org/tab/tbf"
	"tockos.org/tab/util"
)

// Footer TLV type tags. These occupy their own namespace within the footer
// region of the image; they are unrelated to the header TLV tags in
// package tbf.
const (
	TypeSha256    uint16 = 1
	TypeSha384    uint16 = 2
	TypeSha512    uint16 = 3
	TypeRsa4096   uint16 = 4
	TypeEcdsaP256 uint16 = 5
)

const (
	rsaModulusBits = 4096
	rsaFieldBytes  = 512
	ecdsaFieldBytes = 32
)

// Request collects the footer credentials a caller wants computed, in the
// fixed declaration order of spec.md §4.5 (hashes, then signatures).
type Request struct {
	Sha256 bool
	Sha384 bool
	Sha512 bool

	Rsa4096Key   *SignKey
	EcdsaP256Key *SignKey
}

// FooterLength returns the total encoded footer size in bytes, which is
// fixed per requested algorithm and does not depend on the bytes being
// signed (spec.md §9, "credential coverage subtlety": sizes are computed
// before the covered prefix — and therefore total_size — can be finalized).
func (r Request) FooterLength() (int, error) {
	n := 0
	if r.Sha256 {
		n += 4 + sha256.Size
	}
	if r.Sha384 {
		n += 4 + sha512.Size384
	}
	if r.Sha512 {
		n += 4 + sha512.Size
	}
	if r.Rsa4096Key != nil {
		if r.Rsa4096Key.Rsa == nil {
			return 0, util.FmtTabError(util.ErrCryptoFailure,
				"--rsa4096-private key is not an RSA key")
		}
		if r.Rsa4096Key.Rsa.N.BitLen() > rsaModulusBits {
			return 0, util.FmtTabError(util.ErrCryptoFailure,
				"RSA key modulus is larger than %d bits", rsaModulusBits)
		}
		n += 4 + 2*rsaFieldBytes
	}
	if r.EcdsaP256Key != nil {
		if r.EcdsaP256Key.Ec == nil {
			return 0, util.FmtTabError(util.ErrCryptoFailure,
				"--ecdsap256-private key is not an ECDSA key")
		}
		n += 4 + 4*ecdsaFieldBytes
	}
	return n, nil
}

// Build computes every requested credential over covered (the TBF image's
// header-through-binary prefix, i.e. everything but the footer itself) and
// returns the encoded, ordered footer TLV stream.
func Build(covered []byte, r Request) ([]byte, error) {
	var out []byte

	if r.Sha256 {
		sum := sha256.Sum256(covered)
		out = append(out, tbf.EncodeTLV(TypeSha256, sum[:])...)
	}
	if r.Sha384 {
		sum := sha512.Sum384(covered)
		out = append(out, tbf.EncodeTLV(TypeSha384, sum[:])...)
	}
	if r.Sha512 {
		sum := sha512.Sum512(covered)
		out = append(out, tbf.EncodeTLV(TypeSha512, sum[:])...)
	}

	if r.Rsa4096Key != nil {
		value, err := rsaCredential(r.Rsa4096Key.Rsa, covered)
		if err != nil {
			return nil, err
		}
		out = append(out, tbf.EncodeTLV(TypeRsa4096, value)...)
	}

	if r.EcdsaP256Key != nil {
		value, err := ecdsaCredential(r.EcdsaP256Key.Ec, covered)
		if err != nil {
			return nil, err
		}
		out = append(out, tbf.EncodeTLV(TypeEcdsaP256, value)...)
	}

	return out, nil
}

// rsaCredential signs the SHA-512 digest of covered with PKCS#1 v1.5 and
// returns the 512-byte signature followed by the 512-byte public modulus,
// both big-endian (spec.md §4.5).
func rsaCredential(key *rsa.PrivateKey, covered []byte) ([]byte, error) {
	digest := sha512.Sum512(covered)

	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA512, digest[:])
	if err != nil {
		return nil, util.FmtChildTabError(util.ErrCryptoFailure, err,
			"RSA signature generation failed: %s", err)
	}
	sig = leftPad(sig, rsaFieldBytes)

	modulus := leftPad(key.PublicKey.N.Bytes(), rsaFieldBytes)

	value := make([]byte, 0, 2*rsaFieldBytes)
	value = append(value, sig...)
	value = append(value, modulus...)
	return value, nil
}

// ecdsaCredential signs the SHA-256 digest of covered and returns the
// 64-byte r‖s signature followed by the 64-byte uncompressed public key
// X‖Y, both big-endian (spec.md §4.5).
func ecdsaCredential(key *ecdsa.PrivateKey, covered []byte) ([]byte, error) {
	digest := sha256.Sum256(covered)

	r, s, err := ecdsa.Sign(rand.Reader, key, digest[:])
	if err != nil {
		return nil, util.FmtChildTabError(util.ErrCryptoFailure, err,
			"ECDSA signature generation failed: %s", err)
	}

	value := make([]byte, 0, 4*ecdsaFieldBytes)
	value = append(value, leftPad(r.Bytes(), ecdsaFieldBytes)...)
	value = append(value, leftPad(s.Bytes(), ecdsaFieldBytes)...)
	value = append(value, leftPad(key.PublicKey.X.Bytes(), ecdsaFieldBytes)...)
	value = append(value, leftPad(key.PublicKey.Y.Bytes(), ecdsaFieldBytes)...)
	return value, nil
}

func leftPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b[len(b)-size:]
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}
