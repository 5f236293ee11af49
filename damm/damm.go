// Package damm encodes internal integer ids as public, human-typable
// strings with a trailing Damm check digit. The check digit catches all
// single-digit substitutions and all adjacent transpositions.
package damm

import (
	"errors"
	"strconv"
)

// ErrInvalidChecksum indicates the input is not a valid checksummed id.
var ErrInvalidChecksum = errors.New("invalid checksum")

// The Damm quasigroup operation table. Frozen: every public id ever
// issued depends on these exact values. Do not regenerate or reorder.
var opTable = [10][10]uint8{
	{0, 3, 1, 7, 5, 9, 8, 6, 4, 2},
	{7, 0, 9, 2, 1, 5, 4, 8, 6, 3},
	{4, 2, 0, 6, 8, 7, 1, 3, 5, 9},
	{1, 7, 5, 0, 9, 8, 3, 4, 2, 6},
	{6, 1, 2, 3, 0, 4, 5, 9, 7, 8},
	{3, 6, 7, 4, 2, 0, 9, 5, 8, 1},
	{5, 8, 6, 9, 7, 2, 0, 1, 3, 4},
	{8, 9, 4, 5, 3, 6, 2, 0, 1, 7},
	{9, 4, 3, 8, 6, 1, 7, 2, 0, 5},
	{2, 5, 8, 1, 4, 3, 6, 7, 9, 0},
}

// checkDigit runs the Damm automaton over a decimal digit string.
// The input must already be validated as ASCII digits.
func checkDigit(digits string) uint8 {
	var interim uint8
	for i := 0; i < len(digits); i++ {
		interim = opTable[interim][digits[i]-'0']
	}
	return interim
}

// Encode returns the public string form of id: its decimal digits
// followed by one check digit. Ids are never negative; passing one is
// a programming error.
func Encode(id int64) string {
	if id < 0 {
		panic("damm: cannot encode negative id " + strconv.FormatInt(id, 10))
	}
	digits := strconv.FormatInt(id, 10)
	return digits + string('0'+checkDigit(digits))
}

// Decode parses a public id string back to the internal id. It fails
// with ErrInvalidChecksum if the string is empty, contains a non-digit,
// or does not checksum to zero.
func Decode(s string) (int64, error) {
	if len(s) < 2 {
		return 0, ErrInvalidChecksum
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, ErrInvalidChecksum
		}
	}
	if checkDigit(s) != 0 {
		return 0, ErrInvalidChecksum
	}
	id, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
	if err != nil {
		return 0, ErrInvalidChecksum
	}
	return id, nil
}
