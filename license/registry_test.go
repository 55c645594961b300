package license

import (
	"encoding/hex"
	"testing"

	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Helper functions ---

const testMinerAddr = "6098d946df695b6c876b48c3e4c41528ed3a38de"

// makeMinerHash returns the 20-byte script hash for testMinerAddr with the
// last byte shifted by delta, so tests can mint distinct miners.
func makeMinerHash(t *testing.T, delta byte) []byte {
	t.Helper()
	h, err := hex.DecodeString(testMinerAddr)
	require.NoError(t, err)
	h[len(h)-1] -= delta
	return h
}

// makeMinerScript builds the OP_HASH160 <hash> OP_EQUAL locking script a
// licensed miner pays its coinbase to.
func makeMinerScript(t *testing.T, minerHash []byte) *script.Script {
	t.Helper()
	s := &script.Script{}
	require.NoError(t, s.AppendOpcodes(script.OpHASH160))
	require.NoError(t, s.AppendPushData(minerHash))
	require.NoError(t, s.AppendOpcodes(script.OpEQUAL))
	return s
}

// makeLicenseScript builds a license-bearing OP_RETURN output script for
// the given miner script hash and hash rate.
func makeLicenseScript(t *testing.T, minerHash []byte, hashRate uint16) *script.Script {
	t.Helper()

	data := make([]byte, 0, len(LicenseHeader)+len(minerHash)+2)
	data = append(data, LicenseHeader...)
	data = append(data, minerHash...)
	data = append(data, byte(hashRate>>8), byte(hashRate))

	s := &script.Script{}
	require.NoError(t, s.AppendOpcodes(script.OpRETURN))
	require.NoError(t, s.AppendPushData(data))
	return s
}

// makeLicenseTx wraps license scripts into a transaction with one ordinary
// change output in front, the way the WDMO issues them.
func makeLicenseTx(t *testing.T, licenseScripts ...*script.Script) *transaction.Transaction {
	t.Helper()

	tx := transaction.NewTransaction()
	tx.AddOutput(&transaction.TransactionOutput{Satoshis: 49000, LockingScript: &script.Script{}})
	for _, s := range licenseScripts {
		tx.AddOutput(&transaction.TransactionOutput{Satoshis: 0, LockingScript: s})
	}
	return tx
}

func makeSingleLicenseTx(t *testing.T, delta byte, hashRate uint16) *transaction.Transaction {
	t.Helper()
	return makeLicenseTx(t, makeLicenseScript(t, makeMinerHash(t, delta), hashRate))
}

// ---------------------------------------------------------------------------
// License header recognition
// ---------------------------------------------------------------------------

func TestIsLicenseHeader(t *testing.T) {
	s := makeLicenseScript(t, makeMinerHash(t, 0), 5)
	assert.True(t, IsLicenseHeader(s))
}

func TestIsLicenseHeaderRejectsWrongMarker(t *testing.T) {
	s := makeLicenseScript(t, makeMinerHash(t, 0), 5)
	b := s.Bytes()
	b[2]-- // first byte of the license header
	assert.False(t, IsLicenseHeader(script.NewFromBytes(b)))
}

func TestIsLicenseHeaderRejectsWrongShape(t *testing.T) {
	tests := []struct {
		name   string
		script *script.Script
	}{
		{"nil script", nil},
		{"empty script", &script.Script{}},
		{"miner script", makeMinerScript(t, makeMinerHash(t, 0))},
		{"too short", makeLicenseScript(t, makeMinerHash(t, 0)[:19], 5)},
		{"too long", makeLicenseScript(t, append(makeMinerHash(t, 0), makeMinerHash(t, 0)[:13]...), 5)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.False(t, IsLicenseHeader(tc.script))
		})
	}
}

func TestIsLicenseHeaderAcceptsWiderScriptHashes(t *testing.T) {
	// 32-byte script hashes are the upper bound of the encoding.
	wide := make([]byte, 32)
	copy(wide, makeMinerHash(t, 0))
	assert.True(t, IsLicenseHeader(makeLicenseScript(t, wide, 5)))
}

// ---------------------------------------------------------------------------
// ScriptToAddress
// ---------------------------------------------------------------------------

func TestScriptToAddress(t *testing.T) {
	s := makeMinerScript(t, makeMinerHash(t, 0))
	assert.Equal(t, testMinerAddr, ScriptToAddress(s))
}

func TestScriptToAddressRejectsOtherShapes(t *testing.T) {
	opReturn := makeLicenseScript(t, makeMinerHash(t, 0), 5)

	short := &script.Script{}
	require.NoError(t, short.AppendOpcodes(script.OpHASH160))
	require.NoError(t, short.AppendPushData([]byte{0x01, 0x02}))
	require.NoError(t, short.AppendOpcodes(script.OpEQUAL))

	assert.Equal(t, "", ScriptToAddress(nil))
	assert.Equal(t, "", ScriptToAddress(&script.Script{}))
	assert.Equal(t, "", ScriptToAddress(opReturn))
	assert.Equal(t, "", ScriptToAddress(short))
}

// ---------------------------------------------------------------------------
// HandleTx
// ---------------------------------------------------------------------------

func TestHandleTxAddsLicense(t *testing.T) {
	reg := NewRegistry()

	reg.HandleTx(makeSingleLicenseTx(t, 0, 5), 1)
	require.Len(t, reg.Licenses(), 1)

	reg.HandleTx(makeSingleLicenseTx(t, 1, 5), 2)
	assert.Len(t, reg.Licenses(), 2)
}

func TestHandleTxAppliesAllOutputsOfOneTx(t *testing.T) {
	reg := NewRegistry()

	tx := makeLicenseTx(t,
		makeLicenseScript(t, makeMinerHash(t, 0), 5),
		makeLicenseScript(t, makeMinerHash(t, 1), 3),
	)
	reg.HandleTx(tx, 1)

	licenses := reg.Licenses()
	require.Len(t, licenses, 2)
	assert.Equal(t, uint16(5), licenses[0].HashRate)
	assert.Equal(t, uint16(3), licenses[1].HashRate)
}

func TestHandleTxDoesNotDuplicate(t *testing.T) {
	reg := NewRegistry()

	reg.HandleTx(makeSingleLicenseTx(t, 0, 5), 1)
	reg.HandleTx(makeSingleLicenseTx(t, 0, 5), 2)
	assert.Len(t, reg.Licenses(), 1)
}

func TestHandleTxIdempotentAtSameHeight(t *testing.T) {
	reg := NewRegistry()
	tx := makeSingleLicenseTx(t, 0, 5)

	reg.HandleTx(tx, 1)
	before := reg.Licenses()
	reg.HandleTx(tx, 1)
	assert.Equal(t, before, reg.Licenses())
}

func TestHandleTxModifiesExistingLicense(t *testing.T) {
	reg := NewRegistry()

	reg.HandleTx(makeSingleLicenseTx(t, 0, 5), 1)
	require.Equal(t, uint16(5), reg.Licenses()[0].HashRate)

	reg.HandleTx(makeSingleLicenseTx(t, 0, 3), 2)
	licenses := reg.Licenses()
	require.Len(t, licenses, 1)
	assert.Equal(t, uint16(3), licenses[0].HashRate)
	assert.Equal(t, int32(2), licenses[0].Height)
}

func TestHandleTxModifiesPushedLicense(t *testing.T) {
	reg := NewRegistry()

	reg.PushLicense(1, 3, testMinerAddr)
	reg.HandleTx(makeSingleLicenseTx(t, 0, 5), 2)

	licenses := reg.Licenses()
	require.Len(t, licenses, 1)
	assert.Equal(t, uint16(5), licenses[0].HashRate)
}

func TestHandleTxRemovesLicenseOnZeroRate(t *testing.T) {
	reg := NewRegistry()

	reg.HandleTx(makeSingleLicenseTx(t, 0, 5), 1)
	require.Len(t, reg.Licenses(), 1)

	reg.HandleTx(makeSingleLicenseTx(t, 0, 0), 2)
	assert.Empty(t, reg.Licenses())
}

func TestHandleTxIgnoresOlderEntry(t *testing.T) {
	reg := NewRegistry()

	reg.HandleTx(makeSingleLicenseTx(t, 0, 5), 2)
	reg.HandleTx(makeSingleLicenseTx(t, 0, 3), 1)

	licenses := reg.Licenses()
	require.Len(t, licenses, 1)
	assert.Equal(t, uint16(5), licenses[0].HashRate)
	assert.Equal(t, int32(2), licenses[0].Height)
}

func TestHandleTxStoresZeroRateInsert(t *testing.T) {
	reg := NewRegistry()

	// A zero rate for an unknown address has nothing to delete; it is
	// stored and a later non-zero amendment overwrites it.
	reg.HandleTx(makeSingleLicenseTx(t, 0, 0), 1)
	require.Len(t, reg.Licenses(), 1)
	assert.Equal(t, uint16(0), reg.Licenses()[0].HashRate)

	reg.HandleTx(makeSingleLicenseTx(t, 0, 7), 2)
	assert.Equal(t, uint16(7), reg.Licenses()[0].HashRate)
}

func TestHandleTxSkipsNonLicenseOutputs(t *testing.T) {
	reg := NewRegistry()

	tx := transaction.NewTransaction()
	tx.AddOutput(&transaction.TransactionOutput{Satoshis: 1, LockingScript: makeMinerScript(t, makeMinerHash(t, 0))})
	reg.HandleTx(tx, 1)

	assert.Empty(t, reg.Licenses())
	reg.HandleTx(nil, 1)
	assert.Empty(t, reg.Licenses())
}

// ---------------------------------------------------------------------------
// PushLicense / AllowedMiner / lookups
// ---------------------------------------------------------------------------

func TestPushLicense(t *testing.T) {
	reg := NewRegistry()

	reg.PushLicense(1, 5, testMinerAddr)
	licenses := reg.Licenses()
	require.Len(t, licenses, 1)
	assert.Equal(t, uint16(5), licenses[0].HashRate)
}

func TestPushLicenseDoesNotOverwrite(t *testing.T) {
	reg := NewRegistry()

	reg.PushLicense(1, 5, testMinerAddr)
	reg.PushLicense(2, 3, testMinerAddr)

	licenses := reg.Licenses()
	require.Len(t, licenses, 1)
	assert.Equal(t, uint16(5), licenses[0].HashRate)
	assert.Equal(t, int32(1), licenses[0].Height)
}

func TestAllowedMiner(t *testing.T) {
	reg := NewRegistry()
	reg.HandleTx(makeSingleLicenseTx(t, 0, 5), 1)

	assert.True(t, reg.AllowedMiner(makeMinerScript(t, makeMinerHash(t, 0))))
	assert.False(t, reg.AllowedMiner(makeMinerScript(t, makeMinerHash(t, 1))))
	assert.False(t, reg.AllowedMiner(nil))
}

func TestHashRateSum(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, float32(0), reg.HashRateSum())

	reg.HandleTx(makeSingleLicenseTx(t, 0, 5), 1)
	reg.HandleTx(makeSingleLicenseTx(t, 1, 261), 2)

	assert.Equal(t, float32(5+261), reg.HashRateSum())
}

func TestMinerHashRate(t *testing.T) {
	reg := NewRegistry()
	reg.PushLicense(1, 3, testMinerAddr)

	assert.Equal(t, float32(3), reg.MinerHashRate(testMinerAddr))
	assert.Equal(t, float32(0), reg.MinerHashRate("ed83a3de82514c4e3c84b678c6b596fd649d8906"))
}

func TestFind(t *testing.T) {
	reg := NewRegistry()

	_, ok := reg.Find(testMinerAddr)
	assert.False(t, ok)

	reg.PushLicense(1, 3, testMinerAddr)
	e, ok := reg.Find(testMinerAddr)
	require.True(t, ok)
	assert.Equal(t, Entry{Height: 1, HashRate: 3, Address: testMinerAddr}, e)
}

func TestLicensesReturnsInsertionOrderSnapshot(t *testing.T) {
	reg := NewRegistry()
	reg.PushLicense(1, 3, "aa")
	reg.PushLicense(1, 2, "bb")
	reg.PushLicense(1, 1, "cc")

	licenses := reg.Licenses()
	require.Len(t, licenses, 3)
	assert.Equal(t, "aa", licenses[0].Address)
	assert.Equal(t, "bb", licenses[1].Address)
	assert.Equal(t, "cc", licenses[2].Address)

	// Mutating the snapshot must not touch the registry.
	licenses[0].HashRate = 99
	assert.Equal(t, uint16(3), reg.Licenses()[0].HashRate)
}

func TestReset(t *testing.T) {
	reg := NewRegistry()
	reg.PushLicense(1, 3, testMinerAddr)
	reg.Reset()
	assert.Empty(t, reg.Licenses())
}

// ---------------------------------------------------------------------------
// Replay invariance
// ---------------------------------------------------------------------------

func TestReplayRebuildsIdenticalRegistry(t *testing.T) {
	txs := []*transaction.Transaction{
		makeSingleLicenseTx(t, 0, 5),
		makeSingleLicenseTx(t, 1, 2),
		makeSingleLicenseTx(t, 0, 3),
		makeSingleLicenseTx(t, 2, 7),
		makeSingleLicenseTx(t, 1, 0),
	}

	reg := NewRegistry()
	for i, tx := range txs {
		reg.HandleTx(tx, int32(i+1))
	}

	replayed := NewRegistry()
	for i, tx := range txs {
		replayed.HandleTx(tx, int32(i+1))
	}

	assert.Equal(t, reg.Licenses(), replayed.Licenses())
}
