// SPDX-License-Identifier: BSD-3-Clause

// Package dellsmm implements the Dell System Management Mode fan backend
// (FanDell). Dell laptops and some desktops expose fan and
// temperature control through BIOS-resident SMM calls rather than hwmon:
// a command word is loaded into EAX/EBX/ECX/EDX/ESI/EDI, OUT is issued to
// ports 0xb2 then 0x84 to trap into SMM, and the BIOS overwrites the same
// registers with its reply. This is privileged, platform-specific and has
// no portable Go expression, so the actual port I/O lives behind cgo in
// cgo_linux_amd64.go, isolated by a build tag so the package compiles (as
// a permanently unavailable backend) everywhere else.
package dellsmm

import (
	"fmt"
	"sync"
)

// command words, straight from the BIOS's documented SMM command table.
type command uint32

const (
	cmdGetFan command = 0x00a3
	cmdSetFan command = 0x01a3
	cmdGetSpeed command = 0x02a3
	cmdGetFanType command = 0x03a3
	cmdGetNomSpeed command = 0x04a3
	cmdGetTolerance command = 0x05a3
	cmdGetTemp command = 0x10a3
	cmdGetTempType command = 0x11a3
	cmdManualControl1 command = 0x30a3
	cmdAutoControl1 command = 0x31a3
	cmdManualControl3 command = 0x32a3
	cmdAutoControl3 command = 0x33a3
	cmdManualControl2 command = 0x34a3
	cmdAutoControl2 command = 0x35a3
	cmdGetDellSig1 command = 0xfea3
	cmdGetDellSig2 command = 0xffa3
)

const (
	sigDell = 0x44454c4c // "DELL"
	sigDiag = 0x44494147 // "DIAG"
	fanNotFound = 0xff
	maxFanIndex = 2
	portSMI = 0xb2
	portSMIData = 0x84
)

// registers mirrors the packed eax/ebx/ecx/edx/esi/edi struct the BIOS call
// convention expects. Field order and width must match the C struct used
// on the cgo side byte-for-byte.
type registers struct {
	EAX, EBX, ECX, EDX, ESI, EDI uint32
}

// controlFlag identifies one of the three manual/auto control register
// pairs a Dell BIOS may expose. Machines differ in which one actually
// drives a given fan index, so callers probe all three.
type controlFlag int

const (
	controlFlag1 controlFlag = iota + 1
	controlFlag2
	controlFlag3
)

func (f controlFlag) manualCmd() command {
	switch f {
	case controlFlag1:
		return cmdManualControl1
	case controlFlag2:
		return cmdManualControl2
	default:
		return cmdManualControl3
	}
}

func (f controlFlag) autoCmd() command {
	switch f {
	case controlFlag1:
		return cmdAutoControl1
	case controlFlag2:
		return cmdAutoControl2
	default:
		return cmdAutoControl3
	}
}

var (
	portOnce sync.Once
	portErr error
)

// acquirePorts claims the 0xb2/0x84 I/O port range via ioperm(2). It is
// idempotent and safe to call from every SMM call site.
func acquirePorts() error {
	portOnce.Do(func() {
			if !platformSupported() {
				portErr = ErrUnsupportedPlatform
				return
			}
			if !cgoIoperm() {
				portErr = ErrPortAccessDenied
			}
		})
	return portErr
}

// Available reports whether this build can attempt SMM calls at all and a
// BIOS signature was found, without claiming any fan.
func Available() error {
	if err := acquirePorts(); err != nil {
		return err
	}
	return probeSignature()
}

// call issues one SMM command, returning the BIOS's reply registers.
func call(cmd command, args registers) (registers, error) {
	if err := acquirePorts(); err != nil {
		return registers{}, err
	}
	regs := args
	regs.EAX = uint32(cmd)
	if !cgoSMM(&regs) {
		return registers{}, fmt.Errorf("%w: cmd=%#x", ErrCallFailed, uint32(cmd))
	}
	return regs, nil
}

// probeSignature confirms this machine answers the Dell or clone "Diag"
// BIOS signature, per DellSMM.cpp's i8k_get_dell_sig.
func probeSignature() error {
	for _, cmd := range []command{cmdGetDellSig1, cmdGetDellSig2} {
		regs, err := call(cmd, registers{})
		if err != nil {
			continue
		}
		if regs.EAX == sigDell || regs.EAX == sigDiag {
			return nil
		}
	}
	return ErrNoSignature
}

// readFan returns the BIOS's current known-good fan state for fanIndex
// (0-based), used only to confirm the index exists before probing flags.
func readFan(fanIndex int) (int, error) {
	regs, err := call(cmdGetFan, registers{EBX: uint32(fanIndex)})
	if err != nil {
		return 0, err
	}
	v := int(regs.EAX & 0xff)
	if v == fanNotFound {
		return 0, ErrFanNotFound
	}
	return v, nil
}

// restoreAuto hands fanIndex back to BIOS automatic control under flag.
func restoreAuto(flag controlFlag, fanIndex int) error {
	_, err := call(flag.autoCmd(), registers{EBX: uint32(fanIndex)})
	return err
}
