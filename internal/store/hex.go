package store

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

func hexToBytes32(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	return b, nil
}

func bytesToHex(b []byte) string { return hex.EncodeToString(b) }

func beU64ToUint64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }
