package evmasm_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Klingon-tech/monterrey/internal/evmasm"
	"github.com/Klingon-tech/monterrey/internal/evmasm/evmtest"
)

var (
	alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	usdc  = common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	dai   = common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
)

func run(t *testing.T, st *evmtest.State, code []byte) []*big.Int {
	t.Helper()
	ret, err := st.Run(code)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	words, err := evmasm.DecodeWords(ret)
	if err != nil {
		t.Fatalf("DecodeWords: %v", err)
	}
	return words
}

func wantWords(t *testing.T, got []*big.Int, want ...int64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d words, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Cmp(big.NewInt(want[i])) != 0 {
			t.Errorf("word %d = %s, want %d", i, got[i], want[i])
		}
	}
}

func TestNativeBalances(t *testing.T) {
	st := evmtest.NewState()
	st.SetNative(alice, big.NewInt(100))
	st.SetNative(bob, big.NewInt(250))

	words := run(t, st, evmasm.NativeBalances([]common.Address{alice, bob}))
	wantWords(t, words, 100, 250)
}

func TestNativeBalancesUnknownAddressIsZero(t *testing.T) {
	st := evmtest.NewState()
	words := run(t, st, evmasm.NativeBalances([]common.Address{alice}))
	wantWords(t, words, 0)
}

func TestBalancesAddressMajorLayout(t *testing.T) {
	st := evmtest.NewState()
	st.SetNative(alice, big.NewInt(1))
	st.SetNative(bob, big.NewInt(3))
	st.SetToken(usdc, alice, big.NewInt(2))
	st.SetToken(usdc, bob, big.NewInt(4))

	words := run(t, st, evmasm.Balances([]common.Address{alice, bob}, []common.Address{usdc}))
	// [alice.native, alice.usdc, bob.native, bob.usdc]
	wantWords(t, words, 1, 2, 3, 4)
}

func TestBalancesMultipleTokens(t *testing.T) {
	st := evmtest.NewState()
	st.SetNative(alice, big.NewInt(10))
	st.SetToken(usdc, alice, big.NewInt(20))
	st.SetToken(dai, alice, big.NewInt(30))
	st.SetToken(dai, bob, big.NewInt(60))

	words := run(t, st, evmasm.Balances([]common.Address{alice, bob}, []common.Address{usdc, dai}))
	wantWords(t, words, 10, 20, 30, 0, 0, 60)
}

func TestBalancesRevertingTokenReadsZero(t *testing.T) {
	st := evmtest.NewState()
	st.SetNative(alice, big.NewInt(5))
	st.SetToken(usdc, alice, big.NewInt(7))
	st.SetToken(dai, alice, big.NewInt(9))
	st.Reverting[usdc] = true

	words := run(t, st, evmasm.Balances([]common.Address{alice}, []common.Address{usdc, dai}))
	wantWords(t, words, 5, 0, 9)
}

func TestBalancesTokenWithoutCodeReadsZero(t *testing.T) {
	st := evmtest.NewState()
	st.SetNative(alice, big.NewInt(5))
	empty := common.HexToAddress("0x000000000000000000000000000000000000dead")

	words := run(t, st, evmasm.Balances([]common.Address{alice}, []common.Address{empty}))
	wantWords(t, words, 5, 0)
}

func TestBalancesLargeValue(t *testing.T) {
	st := evmtest.NewState()
	big1 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	st.SetToken(usdc, alice, big1)

	words := run(t, st, evmasm.Balances([]common.Address{alice}, []common.Address{usdc}))
	if words[1].Cmp(big1) != 0 {
		t.Fatalf("token word = %s, want %s", words[1], big1)
	}
}

func TestBalancesEmptyAddressList(t *testing.T) {
	st := evmtest.NewState()
	ret, err := st.Run(evmasm.Balances(nil, []common.Address{usdc}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ret) != 0 {
		t.Fatalf("ret = %x, want empty", ret)
	}
}

func TestBalancesDeterministic(t *testing.T) {
	addrs := []common.Address{alice, bob}
	toks := []common.Address{usdc, dai}
	a := evmasm.Balances(addrs, toks)
	b := evmasm.Balances(addrs, toks)
	if string(a) != string(b) {
		t.Fatal("program bytes differ between runs")
	}
}
