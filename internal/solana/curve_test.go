package solana

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

// curveAccountBytes builds a raw bonding curve account with the given
// reserve values.
func curveAccountBytes(virtualTokens, virtualSol, totalSupply uint64, complete bool) []byte {
	data := make([]byte, curveAccountMinLen)
	binary.LittleEndian.PutUint64(data[offsetVirtualTokenReserves:], virtualTokens)
	binary.LittleEndian.PutUint64(data[offsetVirtualSolReserves:], virtualSol)
	binary.LittleEndian.PutUint64(data[offsetRealTokenReserves:], virtualTokens/2)
	binary.LittleEndian.PutUint64(data[offsetRealSolReserves:], virtualSol/2)
	binary.LittleEndian.PutUint64(data[offsetTokenTotalSupply:], totalSupply)
	if complete {
		data[offsetComplete] = 1
	}
	return data
}

func TestParseCurveAccount(t *testing.T) {
	data := curveAccountBytes(1_000_000_000_000_000, 31_200_000_000, 1_000_000_000_000_000, true)

	state, err := ParseCurveAccount(data)
	if err != nil {
		t.Fatalf("ParseCurveAccount failed: %v", err)
	}

	if state.VirtualTokenReserves != 1_000_000_000_000_000 {
		t.Errorf("VirtualTokenReserves = %d", state.VirtualTokenReserves)
	}
	if state.VirtualSolReserves != 31_200_000_000 {
		t.Errorf("VirtualSolReserves = %d", state.VirtualSolReserves)
	}
	if !state.Complete {
		t.Error("Complete flag should be set")
	}
}

func TestParseCurveAccount_TooShort(t *testing.T) {
	if _, err := ParseCurveAccount(make([]byte, 48)); err == nil {
		t.Error("expected error for truncated account data")
	}
}

func TestReserveState_Price(t *testing.T) {
	// 1e15 base units = 1e9 tokens, 31.2e9 lamports = 31.2 SOL.
	state, err := ParseCurveAccount(curveAccountBytes(1_000_000_000_000_000, 31_200_000_000, 1_000_000_000_000_000, false))
	if err != nil {
		t.Fatalf("ParseCurveAccount failed: %v", err)
	}

	reserves := state.Normalize()
	if !reserves.TokenReserves.Equal(decimal.NewFromInt(1_000_000_000)) {
		t.Errorf("TokenReserves = %s, want 1000000000", reserves.TokenReserves)
	}
	if !reserves.SolReserves.Equal(decimal.RequireFromString("31.2")) {
		t.Errorf("SolReserves = %s, want 31.2", reserves.SolReserves)
	}

	want := decimal.RequireFromString("0.0000000312")
	if !reserves.Price().Equal(want) {
		t.Errorf("Price = %s, want %s", reserves.Price(), want)
	}
}

func TestReserveState_Price_ZeroTokenReserves(t *testing.T) {
	r := &ReserveState{SolReserves: decimal.NewFromInt(30)}
	if !r.Price().IsZero() {
		t.Errorf("Price with zero token reserves = %s, want 0", r.Price())
	}
}

func TestDeriveCurveAddress(t *testing.T) {
	mint := base58.Encode(make([]byte, 32))

	addr, err := DeriveCurveAddress(mint)
	if err != nil {
		t.Fatalf("DeriveCurveAddress failed: %v", err)
	}

	decoded, err := base58.Decode(addr)
	if err != nil || len(decoded) != 32 {
		t.Fatalf("PDA %q is not a 32-byte base58 key", addr)
	}
	if isOnCurve(decoded) {
		t.Error("PDA must be off the ed25519 curve")
	}

	// Deterministic for the same mint, distinct across mints.
	again, _ := DeriveCurveAddress(mint)
	if again != addr {
		t.Errorf("derivation not deterministic: %s vs %s", addr, again)
	}

	other := make([]byte, 32)
	other[0] = 1
	otherAddr, err := DeriveCurveAddress(base58.Encode(other))
	if err != nil {
		t.Fatalf("DeriveCurveAddress failed: %v", err)
	}
	if otherAddr == addr {
		t.Error("different mints should derive different PDAs")
	}
}

func TestDeriveCurveAddress_InvalidMint(t *testing.T) {
	if _, err := DeriveCurveAddress("not-base58-!!"); err == nil {
		t.Error("expected error for invalid base58")
	}
	if _, err := DeriveCurveAddress(base58.Encode(make([]byte, 16))); err == nil {
		t.Error("expected error for short key")
	}
}

func TestIsPumpMint(t *testing.T) {
	tests := []struct {
		name string
		mint string
		want bool
	}{
		{"wrong suffix", base58.Encode(make([]byte, 32)), false},
		{"suffix but invalid base58", "0OIl!!!!pump", false},
		{"suffix but too short", "pump", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPumpMint(tt.mint); got != tt.want {
				t.Errorf("IsPumpMint(%q) = %v, want %v", tt.mint, got, tt.want)
			}
		})
	}
}

type fakeAccountReader struct {
	data []byte
	err  error
}

func (f *fakeAccountReader) GetAccountInfo(_ context.Context, _ string) (*AccountInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.data == nil {
		return nil, nil
	}
	return &AccountInfo{
		Owner: PumpProgramID,
		Data:  base64.StdEncoding.EncodeToString(f.data),
	}, nil
}

func TestCurveReader_ReadReserves(t *testing.T) {
	reader := NewCurveReader(&fakeAccountReader{
		data: curveAccountBytes(1_000_000_000_000_000, 31_200_000_000, 1_000_000_000_000_000, false),
	})

	reserves, err := reader.ReadReserves(context.Background(), base58.Encode(make([]byte, 32)))
	if err != nil {
		t.Fatalf("ReadReserves failed: %v", err)
	}
	if !reserves.SolReserves.Equal(decimal.RequireFromString("31.2")) {
		t.Errorf("SolReserves = %s, want 31.2", reserves.SolReserves)
	}
	if reserves.Complete {
		t.Error("Complete should be false")
	}
}

func TestCurveReader_ReadReserves_AccountMissing(t *testing.T) {
	reader := NewCurveReader(&fakeAccountReader{})
	if _, err := reader.ReadReserves(context.Background(), base58.Encode(make([]byte, 32))); err == nil {
		t.Error("expected error when curve account is gone")
	}
}

func TestCurveReader_ReadReserves_RPCError(t *testing.T) {
	rpcErr := errors.New("endpoint down")
	reader := NewCurveReader(&fakeAccountReader{err: rpcErr})
	if _, err := reader.ReadReserves(context.Background(), base58.Encode(make([]byte, 32))); !errors.Is(err, rpcErr) {
		t.Errorf("expected wrapped rpc error, got %v", err)
	}
}
