// Package crc16 implements the bit-serial CCITT checksum the reader
// speaks on the wire: polynomial 0x1021, register preset 0xffff, data
// bits shifted in most significant first, eight steps per byte.
//
// The register is threaded through the calls so several byte groups
// fold into a single checksum. This is the serial shift-in form, not
// the common table-driven CCITT-FALSE; the two disagree as soon as a
// data bit reaches the top of the register, and the reader uses the
// serial form.
package crc16

// Poly is the CCITT generator polynomial.
const Poly uint16 = 0x1021

// Preset is the initial register value.
const Preset uint16 = 0xffff

// Init returns a fresh register.
func Init() uint16 {
	return Preset
}

// Update folds one byte into the register.
func Update(reg uint16, b byte) uint16 {
	for mask := byte(0x80); mask != 0; mask >>= 1 {
		carry := reg&0x8000 != 0
		reg <<= 1
		if b&mask != 0 {
			reg |= 1
		}
		if carry {
			reg ^= Poly
		}
	}
	return reg
}

// Sum folds a byte group into the register.
func Sum(reg uint16, p []byte) uint16 {
	for _, b := range p {
		reg = Update(reg, b)
	}
	return reg
}
