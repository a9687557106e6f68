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

// Package cred computes the TBF footer: content-addressed hash TLVs and
// signature TLVs covering the header and binary bytes of an Image (spec.md
// §4.5).
package cred

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io/ioutil"

	"tockos.org/tab/util"
)

// SignKey is a parsed private key usable for a TBF credential. Exactly one
// member is non-nil.
type SignKey struct {
	Rsa *rsa.PrivateKey
	Ec  *ecdsa.PrivateKey
}

// ParsePrivateKey decodes a PEM-encoded private key in any of PKCS#1 (RSA),
// SEC1 (EC) or unencrypted PKCS#8 form. Password-protected (PKCS#5
// encrypted) keys are not supported: no component of this tool ever needs
// to prompt for or carry a passphrase.
func ParsePrivateKey(keyBytes []byte) (interface{}, error) {
	block, data := pem.Decode(keyBytes)
	if block != nil && block.Type == "EC PARAMETERS" {
		// openssl prepends an EC PARAMETERS block before the key itself;
		// skip it and decode the block that follows.
		block, _ = pem.Decode(data)
	}
	if block == nil {
		return nil, util.FmtTabError(util.ErrCryptoFailure,
			"no PEM block found in key file")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, util.FmtChildTabError(util.ErrCryptoFailure, err,
				"invalid RSA private key: %s", err)
		}
		return priv, nil

	case "EC PRIVATE KEY":
		priv, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, util.FmtChildTabError(util.ErrCryptoFailure, err,
				"invalid EC private key: %s", err)
		}
		return priv, nil

	case "PRIVATE KEY":
		priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, util.FmtChildTabError(util.ErrCryptoFailure, err,
				"invalid PKCS#8 private key: %s", err)
		}
		return priv, nil

	case "ENCRYPTED PRIVATE KEY":
		return nil, util.FmtTabError(util.ErrCryptoFailure,
			"encrypted private keys are not supported")

	default:
		return nil, util.FmtTabError(util.ErrCryptoFailure,
			"unrecognized PEM block type %q; expected an RSA or EC private key",
			block.Type)
	}
}

// BuildSignKey parses keyBytes into a SignKey, rejecting any key type other
// than RSA or P-256 ECDSA (the two TBF credential algorithms).
func BuildSignKey(keyBytes []byte) (SignKey, error) {
	key := SignKey{}

	priv, err := ParsePrivateKey(keyBytes)
	if err != nil {
		return key, err
	}

	switch p := priv.(type) {
	case *rsa.PrivateKey:
		key.Rsa = p
	case *ecdsa.PrivateKey:
		if p.Curve.Params().Name != "P-256" {
			return key, util.FmtTabError(util.ErrCryptoFailure,
				"unsupported ECDSA curve %q; only P-256 is supported",
				p.Curve.Params().Name)
		}
		key.Ec = p
	default:
		return key, util.FmtTabError(util.ErrCryptoFailure,
			"unsupported private key type; only RSA and ECDSA P-256 are supported")
	}

	return key, nil
}

// ReadKey loads and parses a PEM private key file.
func ReadKey(filename string) (SignKey, error) {
	keyBytes, err := ioutil.ReadFile(filename)
	if err != nil {
		return SignKey{}, util.FmtChildTabError(util.ErrIoFailure, err,
			"error reading key file %q: %s", filename, err)
	}

	return BuildSignKey(keyBytes)
}
