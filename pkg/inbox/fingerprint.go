package inbox

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"github.com/zeebo/xxh3"
)

// Fingerprint computes the 128-bit dedup identifier for a projection
// (spec.md §4.10, GLOSSARY): the projection is encoded to canonical JSON
// (encoding/json already sorts map keys, giving a stable byte form across
// processes), hashed with 64-bit XXH3, and packed as low 8 bytes = hash
// little-endian, high 8 bytes = zero. Returned as a hex string for the
// InboxRow primary key column.
func Fingerprint(projection any) (string, error) {
	canonical, err := json.Marshal(projection)
	if err != nil {
		return "", err
	}
	hash := xxh3.Hash(canonical)

	var id [16]byte
	binary.LittleEndian.PutUint64(id[:8], hash)
	return hex.EncodeToString(id[:]), nil
}
