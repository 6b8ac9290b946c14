package ledger

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

const wordSize = 32

// methodSelector returns the 4-byte function selector for a solidity method
// signature
func methodSelector(signature string) []byte {
	hash := sha3.NewLegacyKeccak256()
	hash.Write([]byte(signature))
	return hash.Sum(nil)[:4]
}

// encodeCallData builds the eth_call data payload for a single uint256
// argument: selector followed by the argument left-padded to one word
func encodeCallData(selector []byte, arg *big.Int) string {
	word := make([]byte, wordSize)
	arg.FillBytes(word)

	data := make([]byte, 0, len(selector)+wordSize)
	data = append(data, selector...)
	data = append(data, word...)

	return "0x" + hex.EncodeToString(data)
}

// decodeHexResult strips the 0x prefix and decodes an eth_call result
func decodeHexResult(result string) ([]byte, error) {
	trimmed := strings.TrimPrefix(result, "0x")
	if trimmed == "" {
		return nil, nil
	}
	data, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("malformed hex result: %w", err)
	}
	return data, nil
}

// decodeConsumerReturn decodes the (string name, string mobile) return tuple
// of the consumer lookup
func decodeConsumerReturn(data []byte) (name, mobile string, err error) {
	if len(data) < 2*wordSize {
		return "", "", fmt.Errorf("return data too short: %d bytes", len(data))
	}

	nameOffset, err := readOffset(data, 0)
	if err != nil {
		return "", "", err
	}
	mobileOffset, err := readOffset(data, wordSize)
	if err != nil {
		return "", "", err
	}

	name, err = readString(data, nameOffset)
	if err != nil {
		return "", "", fmt.Errorf("decoding name: %w", err)
	}
	mobile, err = readString(data, mobileOffset)
	if err != nil {
		return "", "", fmt.Errorf("decoding mobile: %w", err)
	}

	return name, mobile, nil
}

func readOffset(data []byte, at int) (int, error) {
	if at+wordSize > len(data) {
		return 0, fmt.Errorf("offset word out of range at %d", at)
	}
	offset := new(big.Int).SetBytes(data[at : at+wordSize])
	if !offset.IsInt64() || offset.Int64() < 0 || offset.Int64() > int64(len(data)) {
		return 0, fmt.Errorf("invalid dynamic offset at %d", at)
	}
	return int(offset.Int64()), nil
}

// readString decodes a dynamic string at the given byte offset: one length
// word followed by the content, right-padded to a word boundary
func readString(data []byte, offset int) (string, error) {
	if offset+wordSize > len(data) {
		return "", fmt.Errorf("length word out of range at %d", offset)
	}
	length := new(big.Int).SetBytes(data[offset : offset+wordSize])
	if !length.IsInt64() || length.Int64() < 0 || length.Int64() > int64(len(data)) {
		// A length beyond the payload can also overflow the end offset
		return "", fmt.Errorf("invalid string length at %d", offset)
	}

	start := offset + wordSize
	end := start + int(length.Int64())
	if end > len(data) {
		return "", fmt.Errorf("string content out of range at %d", offset)
	}

	return string(data[start:end]), nil
}
