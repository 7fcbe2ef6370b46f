package solana

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

// PumpProgramID is the pump.fun bonding curve program.
const PumpProgramID = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

// bondingCurveSeed is the PDA seed prefix for curve accounts.
const bondingCurveSeed = "bonding-curve"

// Bonding curve account layout: 8-byte anchor discriminator, then five
// little-endian u64 fields, then the completion flag.
const (
	offsetVirtualTokenReserves = 8
	offsetVirtualSolReserves   = 16
	offsetRealTokenReserves    = 24
	offsetRealSolReserves      = 32
	offsetTokenTotalSupply     = 40
	offsetComplete             = 48
	curveAccountMinLen         = 49
)

// Unit scales: SOL has 9 decimals, pump.fun tokens have 6.
var (
	lamportsPerSol = decimal.New(1, 9)
	tokenBaseUnits = decimal.New(1, 6)
)

// CurveState is the raw decoded bonding curve account.
type CurveState struct {
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
}

// ReserveState is the normalized view the oracle consumes: reserves in
// whole tokens and SOL rather than base units and lamports.
type ReserveState struct {
	TokenReserves decimal.Decimal
	SolReserves   decimal.Decimal
	TotalSupply   decimal.Decimal
	Complete      bool
}

// Price returns SOL per token from the virtual reserves.
func (r *ReserveState) Price() decimal.Decimal {
	if !r.TokenReserves.IsPositive() {
		return decimal.Zero
	}
	return r.SolReserves.Div(r.TokenReserves)
}

// Normalize converts the raw curve state into decimal units.
func (s *CurveState) Normalize() *ReserveState {
	return &ReserveState{
		TokenReserves: fromU64(s.VirtualTokenReserves).Div(tokenBaseUnits),
		SolReserves:   fromU64(s.VirtualSolReserves).Div(lamportsPerSol),
		TotalSupply:   fromU64(s.TokenTotalSupply).Div(tokenBaseUnits),
		Complete:      s.Complete,
	}
}

func fromU64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// ParseCurveAccount decodes a bonding curve account's raw bytes.
func ParseCurveAccount(data []byte) (*CurveState, error) {
	if len(data) < curveAccountMinLen {
		return nil, fmt.Errorf("curve account too short: %d bytes", len(data))
	}

	return &CurveState{
		VirtualTokenReserves: binary.LittleEndian.Uint64(data[offsetVirtualTokenReserves:]),
		VirtualSolReserves:   binary.LittleEndian.Uint64(data[offsetVirtualSolReserves:]),
		RealTokenReserves:    binary.LittleEndian.Uint64(data[offsetRealTokenReserves:]),
		RealSolReserves:      binary.LittleEndian.Uint64(data[offsetRealSolReserves:]),
		TokenTotalSupply:     binary.LittleEndian.Uint64(data[offsetTokenTotalSupply:]),
		Complete:             data[offsetComplete] != 0,
	}, nil
}

// DeriveCurveAddress derives the bonding curve PDA for a mint.
// Seeds: ["bonding-curve", mint] under the pump program.
func DeriveCurveAddress(mint string) (string, error) {
	mintBytes, err := base58.Decode(mint)
	if err != nil {
		return "", fmt.Errorf("decode mint: %w", err)
	}
	if len(mintBytes) != 32 {
		return "", fmt.Errorf("mint is not a 32-byte key")
	}

	programBytes, err := base58.Decode(PumpProgramID)
	if err != nil {
		return "", fmt.Errorf("decode program id: %w", err)
	}

	pda := derivePDA([][]byte{[]byte(bondingCurveSeed), mintBytes}, programBytes)
	if pda == "" {
		return "", fmt.Errorf("no valid bump for mint %s", mint)
	}
	return pda, nil
}

// derivePDA derives a Program Derived Address using the Solana algorithm:
// sha256(seeds || bump || programID || "ProgramDerivedAddress"), taking the
// highest bump that lands off the ed25519 curve.
func derivePDA(seeds [][]byte, programID []byte) string {
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, programID...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)

		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:])
		}
	}

	return ""
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// IsPumpMint reports whether mint is a well-formed pump.fun mint address:
// valid base58 for a 32-byte key with the vanity "pump" suffix.
func IsPumpMint(mint string) bool {
	if !strings.HasSuffix(mint, "pump") {
		return false
	}
	decoded, err := base58.Decode(mint)
	if err != nil {
		return false
	}
	return len(decoded) == 32
}

// AccountReader is the subset of the RPC client the curve reader needs.
type AccountReader interface {
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)
}

// CurveReader reads bonding curve reserves for a mint over RPC.
type CurveReader struct {
	rpc AccountReader
}

// NewCurveReader creates a CurveReader on top of an RPC client.
func NewCurveReader(rpc AccountReader) *CurveReader {
	return &CurveReader{rpc: rpc}
}

// ReadReserves fetches and decodes the bonding curve account for a mint.
// Returns an error when the account does not exist, which happens for
// graduated tokens whose curve account was closed.
func (r *CurveReader) ReadReserves(ctx context.Context, mint string) (*ReserveState, error) {
	curveAddr, err := DeriveCurveAddress(mint)
	if err != nil {
		return nil, err
	}

	info, err := r.rpc.GetAccountInfo(ctx, curveAddr)
	if err != nil {
		return nil, fmt.Errorf("fetch curve account: %w", err)
	}
	if info == nil {
		return nil, fmt.Errorf("curve account %s not found", curveAddr)
	}

	raw, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}

	state, err := ParseCurveAccount(raw)
	if err != nil {
		return nil, err
	}
	return state.Normalize(), nil
}
