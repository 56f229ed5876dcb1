//go:build windows

package cryptoutils

// LineSeparator is the platform line separator used in PEM framing.
const LineSeparator = "\r\n"
