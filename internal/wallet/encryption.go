package wallet

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Sealed blob layout:
//
//	version(1) | salt(16) | memory(4) | iterations(4) | parallelism(1) | nonce(24) | ciphertext
//
// The header up to and including the nonce is authenticated as associated data.
const (
	sealVersion  = 1
	kdfSaltSize  = 16
	paramsSize   = 4 + 4 + 1
	sealedHeader = 1 + kdfSaltSize + paramsSize + chacha20poly1305.NonceSizeX
)

// ErrBadPassword is returned when a sealed blob does not open.
var ErrBadPassword = errors.New("wallet: wrong password or corrupted data")

// KDFParams holds Argon2id cost parameters.
type KDFParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultKDFParams returns the cost used for exported keys.
func DefaultKDFParams() KDFParams {
	return KDFParams{Memory: 64 * 1024, Iterations: 3, Parallelism: 4}
}

func (p KDFParams) key(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, p.Iterations, p.Memory, p.Parallelism, chacha20poly1305.KeySize)
}

// Encrypt seals data under password with Argon2id and XChaCha20-Poly1305.
func Encrypt(data, password []byte, params KDFParams) ([]byte, error) {
	if params.Iterations == 0 || params.Parallelism == 0 {
		return nil, fmt.Errorf("invalid kdf params: %+v", params)
	}
	header := make([]byte, 0, sealedHeader)
	header = append(header, sealVersion)

	salt := make([]byte, kdfSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	header = append(header, salt...)
	header = binary.BigEndian.AppendUint32(header, params.Memory)
	header = binary.BigEndian.AppendUint32(header, params.Iterations)
	header = append(header, params.Parallelism)

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	header = append(header, nonce...)

	key := params.key(password, salt)
	defer clear(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	ciphertext := aead.Seal(nil, nonce, data, header)
	return append(header, ciphertext...), nil
}

// Decrypt opens a blob produced by Encrypt.
func Decrypt(sealed, password []byte) ([]byte, error) {
	if len(sealed) < sealedHeader+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("sealed data too short: %d bytes", len(sealed))
	}
	if sealed[0] != sealVersion {
		return nil, fmt.Errorf("unsupported sealed version %d", sealed[0])
	}
	header := sealed[:sealedHeader]
	salt := header[1 : 1+kdfSaltSize]
	p := header[1+kdfSaltSize:]
	params := KDFParams{
		Memory:      binary.BigEndian.Uint32(p[0:4]),
		Iterations:  binary.BigEndian.Uint32(p[4:8]),
		Parallelism: p[8],
	}
	if params.Iterations == 0 || params.Parallelism == 0 {
		return nil, fmt.Errorf("invalid kdf params in header: %+v", params)
	}
	nonce := header[1+kdfSaltSize+paramsSize:]

	key := params.key(password, salt)
	defer clear(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plain, err := aead.Open(nil, nonce, sealed[sealedHeader:], header)
	if err != nil {
		return nil, ErrBadPassword
	}
	return plain, nil
}
