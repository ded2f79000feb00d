package polkadot

import (
	"encoding/binary"

	"github.com/OneOfOne/xxhash"
	"golang.org/x/crypto/blake2b"
)

// StorageKey builds the key of a plain storage item.
func StorageKey(pallet, item string) []byte {
	return append(Twox128([]byte(pallet)), Twox128([]byte(item))...)
}

// StorageMapKey builds the key of a Blake2_128Concat storage map entry.
func StorageMapKey(pallet, item string, key []byte) []byte {
	return append(StorageKey(pallet, item), Blake2_128Concat(key)...)
}

// SystemAccountKey is the System.Account entry of an account id.
func SystemAccountKey(pub []byte) []byte {
	return StorageMapKey("System", "Account", pub)
}

// Twox128 implements the TwoX 128-bit hash
func Twox128(data []byte) []byte {
	hash1 := xxhash.NewS64(0)
	hash1.Write(data)
	hash2 := xxhash.NewS64(1)
	hash2.Write(data)

	out := make([]byte, 16)
	binary.LittleEndian.PutUint64(out[0:], hash1.Sum64())
	binary.LittleEndian.PutUint64(out[8:], hash2.Sum64())
	return out
}

// Blake2_128 implements the Blake2b 128-bit hash.
func Blake2_128(data []byte) []byte {
	h, _ := blake2b.New(16, nil)
	h.Write(data)
	return h.Sum(nil)
}

func Blake2_128Concat(data []byte) []byte {
	return append(Blake2_128(data), data...)
}
