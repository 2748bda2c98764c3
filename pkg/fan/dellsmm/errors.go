// SPDX-License-Identifier: BSD-3-Clause

package dellsmm

import "errors"

var (
	// ErrUnsupportedPlatform indicates the binary was not built for
	// linux/amd64, the only platform the SMM port protocol can run on.
	ErrUnsupportedPlatform = errors.New("dell smm: unsupported platform")
	// ErrPortAccessDenied indicates ioperm(2) could not acquire the 0xb2/0x84
	// I/O port range, usually because the process lacks CAP_SYS_RAWIO.
	ErrPortAccessDenied = errors.New("dell smm: port access denied")
	// ErrNoSignature indicates neither the Dell nor Diag BIOS signature
	// could be read back from SMM, so this machine is not a Dell.
	ErrNoSignature = errors.New("dell smm: no dell/diag signature")
	// ErrFanNotFound indicates the BIOS reported FAN_NOT_FOUND when the
	// fan's status was read while binding it (NewFan).
	ErrFanNotFound = errors.New("dell smm: fan not found")
	ErrCallFailed  = errors.New("dell smm: call failed")
)
