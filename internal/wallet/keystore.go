package wallet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Klingon-tech/monterrey/pkg/crypto"
)

const keyFileExt = ".key"

// keyFile is the on-disk JSON form of an exported wallet key.
type keyFile struct {
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	Account      string    `json:"account"`
	Index        uint64    `json:"index"`
	Address      string    `json:"address"`
	EncryptedKey []byte    `json:"encrypted_key"`
}

// Keystore writes password-protected copies of derived keys, for handing a
// single deposit wallet to an external signer.
type Keystore struct {
	dir string
}

// NewKeystore opens (creating if needed) a keystore directory.
func NewKeystore(dir string) (*Keystore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{dir: dir}, nil
}

// Path returns the file an address is exported to.
func (ks *Keystore) Path(addr common.Address) string {
	return filepath.Join(ks.dir, strings.ToLower(addr.Hex())+keyFileExt)
}

// Export writes w's key encrypted under password and returns the file path.
// An existing export for the same address is not overwritten.
func (ks *Keystore) Export(w *Wallet, password []byte, params KDFParams) (string, error) {
	path := ks.Path(w.Address)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("key for %s already exported", w.Address.Hex())
	}

	secret := w.Key.Serialize()
	defer clear(secret)
	enc, err := Encrypt(secret, password, params)
	if err != nil {
		return "", fmt.Errorf("encrypt key: %w", err)
	}

	kf := keyFile{
		Version:      1,
		CreatedAt:    time.Now().UTC(),
		Account:      w.Account,
		Index:        w.Index,
		Address:      w.Address.Hex(),
		EncryptedKey: enc,
	}
	data, err := json.MarshalIndent(&kf, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal key file: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("write key file: %w", err)
	}
	return path, nil
}

// Import reads and decrypts an exported key file. The decrypted key must
// control the address recorded in the file.
func (ks *Keystore) Import(path string, password []byte) (*Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}
	if kf.Version != 1 {
		return nil, fmt.Errorf("unsupported key file version: %d", kf.Version)
	}

	secret, err := Decrypt(kf.EncryptedKey, password)
	if err != nil {
		return nil, err
	}
	defer clear(secret)
	key, err := crypto.PrivateKeyFromBytes(secret)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if want := common.HexToAddress(kf.Address); key.Address() != want {
		return nil, fmt.Errorf("key file address %s does not match key address %s", want.Hex(), key.Address().Hex())
	}
	return &Wallet{
		Account: kf.Account,
		Index:   kf.Index,
		Key:     key,
		Address: key.Address(),
	}, nil
}

// List returns the addresses with exported keys.
func (ks *Keystore) List() ([]common.Address, error) {
	entries, err := os.ReadDir(ks.dir)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}
	var out []common.Address
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != keyFileExt {
			continue
		}
		base := strings.TrimSuffix(name, keyFileExt)
		if common.IsHexAddress(base) {
			out = append(out, common.HexToAddress(base))
		}
	}
	return out, nil
}
