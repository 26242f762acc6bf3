//go:build linux

package logger

// TCGETS reads the termios attributes on Linux.
const ioctlReadTermios = 0x5401
