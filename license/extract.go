package license

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/script"
)

// LicenseHeader is the 3-byte marker ("LTx") that opens the OP_RETURN
// payload of a license-bearing output.
var LicenseHeader = []byte{0x4C, 0x54, 0x78}

// License output wire layout. Each length is in bytes:
//
//	opcode      1   OP_RETURN
//	data size   1   push length
//	header      3   LicenseHeader
//	script hash S   miner script-hash, 20..32 bytes
//	hash rate   2   big-endian uint16, PH/s
const (
	opcodeSize     = 1
	dataLengthSize = 1
	headerSize     = 3
	hashRateSize   = 2

	// MinMinerScriptSize and MaxMinerScriptSize bound the embedded miner
	// script-hash (20 bytes for HASH160, up to 32 for a SHA256-based hash).
	MinMinerScriptSize = 20
	MaxMinerScriptSize = 32

	minLicenseScriptSize = opcodeSize + dataLengthSize + headerSize + MinMinerScriptSize + hashRateSize
	maxLicenseScriptSize = opcodeSize + dataLengthSize + headerSize + MaxMinerScriptSize + hashRateSize
)

// IsLicenseHeader reports whether a locking script is a license-bearing
// OP_RETURN output: correct size bounds, OP_RETURN prefix, and the
// LicenseHeader marker at the start of the pushed data.
func IsLicenseHeader(s *script.Script) bool {
	if s == nil {
		return false
	}

	b := s.Bytes()
	if len(b) < minLicenseScriptSize || len(b) > maxLicenseScriptSize {
		return false
	}
	if b[0] != script.OpRETURN {
		return false
	}

	for i, h := range LicenseHeader {
		if b[opcodeSize+dataLengthSize+i] != h {
			return false
		}
	}
	return true
}

// minerScriptSize returns the length of the embedded miner script-hash,
// inferred from the total script length.
func minerScriptSize(b []byte) int {
	return len(b) - opcodeSize - dataLengthSize - headerSize - hashRateSize
}

// extractEntry parses a license-bearing locking script into an Entry.
// The caller must have checked IsLicenseHeader first.
func extractEntry(s *script.Script, height int32) (Entry, error) {
	b := s.Bytes()
	size := minerScriptSize(b)
	if size < MinMinerScriptSize || size > MaxMinerScriptSize {
		return Entry{}, fmt.Errorf("%w: miner script-hash of %d bytes", ErrMalformedOutput, size)
	}

	const dataStart = opcodeSize + dataLengthSize + headerSize
	return Entry{
		Height:   height,
		HashRate: binary.BigEndian.Uint16(b[len(b)-hashRateSize:]),
		Address:  hex.EncodeToString(b[dataStart : dataStart+size]),
	}, nil
}

// ScriptToAddress extracts the miner address from an
// OP_HASH160 <script-hash> OP_EQUAL locking script: the lowercase hex of
// the pushed hash bytes. Any other script shape yields "".
func ScriptToAddress(s *script.Script) string {
	if s == nil {
		return ""
	}

	chunks, err := s.Chunks()
	if err != nil || len(chunks) != 3 {
		return ""
	}
	if chunks[0].Op != script.OpHASH160 || chunks[2].Op != script.OpEQUAL {
		return ""
	}
	if len(chunks[1].Data) < MinMinerScriptSize || len(chunks[1].Data) > MaxMinerScriptSize {
		return ""
	}
	return hex.EncodeToString(chunks[1].Data)
}
