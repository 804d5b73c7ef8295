// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package auth

import (
	"crypto/rand"
	"os"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/nrdxhq/blockstranding/internal/codec"
)

// argon2id parameters for passphrase-protected key files.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2SaltLen = 16
)

const keyFileVersion = 1

// keyFile is the on-disk form of a key. Seed holds the ed25519 seed in the
// clear when Salt is empty, and its XChaCha20-Poly1305 ciphertext otherwise.
type keyFile struct {
	Version  int           `cbor:"1,keyasint"`
	Identity string        `cbor:"2,keyasint"`
	Salt     []byte        `cbor:"3,keyasint,omitempty"`
	Nonce    []byte        `cbor:"4,keyasint,omitempty"`
	Seed     []byte        `cbor:"5,keyasint"`
	KDF      *argon2Params `cbor:"6,keyasint,omitempty"`
}

type argon2Params struct {
	Time    uint32 `cbor:"1,keyasint"`
	Memory  uint32 `cbor:"2,keyasint"`
	Threads uint8  `cbor:"3,keyasint"`
}

// SaveKey writes k to path with mode 0600. A non-empty passphrase encrypts
// the seed with a key derived by argon2id.
func SaveKey(path string, k *KeyPair, passphrase string) error {
	kf := keyFile{Version: keyFileVersion, Identity: k.Identity().String(), Seed: k.Private.Seed()}
	if passphrase != "" {
		params := argon2Params{Time: argon2Time, Memory: argon2Memory, Threads: argon2Threads}
		kf.Salt = make([]byte, argon2SaltLen)
		if _, err := rand.Read(kf.Salt); err != nil {
			return oops.Code("AUTH_SALT_FAILED").Wrap(err)
		}
		aead, err := chacha20poly1305.NewX(deriveKey(passphrase, kf.Salt, params))
		if err != nil {
			return oops.Code("AUTH_KEY_SEAL_FAILED").Wrap(err)
		}
		kf.Nonce = make([]byte, aead.NonceSize())
		if _, err := rand.Read(kf.Nonce); err != nil {
			return oops.Code("AUTH_KEY_SEAL_FAILED").Wrap(err)
		}
		kf.Seed = aead.Seal(nil, kf.Nonce, kf.Seed, []byte(kf.Identity))
		kf.KDF = &params
	}

	data, err := codec.Marshal(kf)
	if err != nil {
		return oops.Code("AUTH_KEY_ENCODE_FAILED").Wrap(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return oops.Code("AUTH_KEY_WRITE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

// LoadKey reads a key written by SaveKey.
func LoadKey(path, passphrase string) (*KeyPair, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied
	if err != nil {
		return nil, oops.Code("AUTH_KEY_READ_FAILED").With("path", path).Wrap(err)
	}
	var kf keyFile
	if err := codec.Unmarshal(data, &kf); err != nil {
		return nil, oops.Code("AUTH_KEY_INVALID").With("path", path).Wrap(err)
	}
	if kf.Version != keyFileVersion {
		return nil, oops.Code("AUTH_KEY_INVALID").With("path", path).Errorf("unsupported key file version %d", kf.Version)
	}

	seed := kf.Seed
	if len(kf.Salt) > 0 {
		if passphrase == "" {
			return nil, oops.Code("AUTH_KEY_LOCKED").With("path", path).Wrap(ErrKeyLocked)
		}
		if kf.KDF == nil {
			return nil, oops.Code("AUTH_KEY_INVALID").With("path", path).Errorf("missing kdf parameters")
		}
		aead, err := chacha20poly1305.NewX(deriveKey(passphrase, kf.Salt, *kf.KDF))
		if err != nil {
			return nil, oops.Code("AUTH_KEY_INVALID").Wrap(err)
		}
		seed, err = aead.Open(nil, kf.Nonce, kf.Seed, []byte(kf.Identity))
		if err != nil {
			return nil, oops.Code("AUTH_WRONG_PASSPHRASE").With("path", path).Wrap(ErrWrongPassphrase)
		}
	}

	k, err := KeyFromSeed(seed)
	if err != nil {
		return nil, err
	}
	if k.Identity().String() != kf.Identity {
		return nil, oops.Code("AUTH_KEY_INVALID").With("path", path).Errorf("seed does not match recorded identity")
	}
	return k, nil
}

func deriveKey(passphrase string, salt []byte, p argon2Params) []byte {
	return argon2.IDKey([]byte(passphrase), salt, p.Time, p.Memory, p.Threads, chacha20poly1305.KeySize)
}
