package consent

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

func keccak(parts ...[]byte) string {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// ContractID derives a consent contract id from the ordered parties and the
// global consent nonce.
func ContractID(initiator, counterparty string, nonce uint64) string {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	return keccak([]byte(initiator), []byte(counterparty), n[:])
}

// RelationshipID is derived from the consent contract that seeded it.
func RelationshipID(contractID string) string {
	return keccak([]byte("relationship"), []byte(contractID))
}
