// derive_key.go prints the seed, private key and address derived for an
// account, for checking deposit addresses against another implementation.
// Usage: MONTERREY_SALT=... go run scripts/derive_key.go <account> [index]
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/Klingon-tech/monterrey/internal/wallet"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: derive_key <account> [index]")
		os.Exit(1)
	}
	salt := os.Getenv("MONTERREY_SALT")
	if salt == "" {
		fmt.Fprintln(os.Stderr, "MONTERREY_SALT is not set")
		os.Exit(1)
	}
	var index uint64
	if len(os.Args) > 2 {
		n, err := strconv.ParseUint(os.Args[2], 10, 64)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		index = n
	}

	d, err := wallet.NewDeriver(salt, wallet.DefaultVersion)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	w, err := d.Derive(os.Args[1], index)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer w.Key.Zero()
	fmt.Printf("seed=%s\n", hex.EncodeToString(d.Seed(index)))
	fmt.Printf("key=%s\n", w.Key.Hex())
	fmt.Printf("pubkey=%s\n", hex.EncodeToString(w.Key.PublicKey()))
	fmt.Printf("address=%s\n", w.Address.Hex())
}
