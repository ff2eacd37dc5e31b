package watcher

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Klingon-tech/monterrey/internal/ledger"
)

// Token is a watched ERC20-style token.
type Token struct {
	Symbol  string
	Address common.Address
	// Decimals of the token's raw unit.
	Decimals uint8
	// ConversionRate is ledger units per token unit before decimal rescaling.
	ConversionRate *big.Int
}

// Config holds conversion settings.
type Config struct {
	// EthConversion multiplies native deltas. Nil means 1.
	EthConversion *big.Int
	Tokens        []Token
}

func (c Config) validate() error {
	if c.EthConversion != nil && c.EthConversion.Sign() < 0 {
		return fmt.Errorf("eth conversion must be non-negative")
	}
	seen := make(map[common.Address]bool, len(c.Tokens))
	for _, t := range c.Tokens {
		if t.ConversionRate == nil || t.ConversionRate.Sign() < 0 {
			return fmt.Errorf("token %s: conversion rate must be non-negative", t.Symbol)
		}
		if seen[t.Address] {
			return fmt.Errorf("token %s: duplicate address %s", t.Symbol, t.Address.Hex())
		}
		seen[t.Address] = true
	}
	return nil
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// ConvertNative converts a native-currency delta into ledger units.
func (c Config) ConvertNative(delta *big.Int) *big.Int {
	if c.EthConversion == nil {
		return new(big.Int).Set(delta)
	}
	return new(big.Int).Mul(delta, c.EthConversion)
}

// Convert converts a raw token delta into ledger units: delta times the
// token's rate, rescaled from the token's decimals to ledger decimals.
// Rescaling down truncates.
func (c Config) Convert(delta *big.Int, t Token) *big.Int {
	v := new(big.Int).Mul(delta, t.ConversionRate)
	switch {
	case t.Decimals < ledger.Decimals:
		v.Mul(v, pow10(ledger.Decimals-t.Decimals))
	case t.Decimals > ledger.Decimals:
		v.Quo(v, pow10(t.Decimals-ledger.Decimals))
	}
	return v
}
