// SPDX-License-Identifier: BSD-3-Clause

//go:build linux && amd64

package dellsmm

/*
#include <sys/io.h>

typedef struct {
	unsigned int eax;
	unsigned int ebx;
	unsigned int ecx;
	unsigned int edx;
	unsigned int esi;
	unsigned int edi;
} fancond_smm_regs;

static int fancond_ioperm(void) {
	return ioperm(0xb2, 4, 1) == 0 && ioperm(0x84, 4, 1) == 0;
}

// fancond_smm issues the two-port SMI trap documented by the i8k driver:
// load eax/ebx/ecx/edx/esi/edi from regs, OUT to 0xb2 then 0x84, and read
// the BIOS's reply back out of the same registers. Call success is the
// carry flag plus the eax sanity checks the BIOS convention defines.
static int fancond_smm(fancond_smm_regs *regs) {
	unsigned int eax = regs->eax;
	int rc;

	__asm__ volatile(
		"pushq %%rax\n\t"
		"movl 0(%%rax),%%edx\n\t"
		"pushq %%rdx\n\t"
		"movl 4(%%rax),%%ebx\n\t"
		"movl 8(%%rax),%%ecx\n\t"
		"movl 12(%%rax),%%edx\n\t"
		"movl 16(%%rax),%%esi\n\t"
		"movl 20(%%rax),%%edi\n\t"
		"popq %%rax\n\t"
		"out %%al,$0xb2\n\t"
		"out %%al,$0x84\n\t"
		"xchgq %%rax,(%%rsp)\n\t"
		"movl %%ebx,4(%%rax)\n\t"
		"movl %%ecx,8(%%rax)\n\t"
		"movl %%edx,12(%%rax)\n\t"
		"movl %%esi,16(%%rax)\n\t"
		"movl %%edi,20(%%rax)\n\t"
		"popq %%rdx\n\t"
		"movl %%edx,0(%%rax)\n\t"
		"pushfq\n\t"
		"popq %%rax\n\t"
		"andl $1,%%eax\n"
		: "=a"(rc)
		: "a"(regs)
		: "%ebx", "%ecx", "%edx", "%esi", "%edi", "memory");

	return rc == 0 && (regs->eax & 0xffff) != 0xffff && regs->eax != eax;
}
*/
import "C"

import "unsafe"

func cgoIoperm() bool {
	return C.fancond_ioperm() != 0
}

func cgoSMM(regs *registers) bool {
	return C.fancond_smm((*C.fancond_smm_regs)(unsafe.Pointer(regs))) != 0
}

func platformSupported() bool { return true }
