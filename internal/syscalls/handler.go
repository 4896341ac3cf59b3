// Licensed to Specter under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. Specter licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// Package syscalls routes a guest program's system calls. Every number
// falls into exactly one category: emulated in-process, passed through to
// the native kernel, or explicitly unsupported. Unmapped numbers are
// unsupported by default.
package syscalls

import (
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"

	"github.com/specter-sim/specter/models"
	"github.com/specter-sim/specter/pkg/logger"
)

// Custom syscall numbers understood only inside the simulation. Kept well
// above the kernel's range.
const (
	// SysYield asks the simulator to reschedule the calling thread.
	SysYield int64 = 1000 + iota
	// SysInitMemoryManager sets up guest memory interception.
	SysInitMemoryManager
	// SysHostnameToAddrIPv4 resolves a simulated hostname to its address.
	SysHostnameToAddrIPv4
)

// ThreadContext identifies the guest thread making a call.
type ThreadContext struct {
	Host      *models.Host
	ProcessID int
	ThreadID  int
}

// Args is the raw syscall request.
type Args struct {
	Number int64
	Arg    [6]uint64
}

// ResultKind partitions syscall outcomes.
type ResultKind int8

const (
	// KindEmulated carries an in-process result value.
	KindEmulated ResultKind = iota
	// KindNative tells the caller to execute the real syscall.
	KindNative
	// KindErrno carries a failure errno.
	KindErrno
)

// Result is the outcome of a dispatch.
type Result struct {
	Kind  ResultKind
	Value uint64
	Errno unix.Errno
}

// OK returns an emulated success result.
func OK(v uint64) Result { return Result{Kind: KindEmulated, Value: v} }

// Native returns a native-passthrough result.
func Native() Result { return Result{Kind: KindNative} }

// Fail returns an errno result.
func Fail(errno unix.Errno) Result { return Result{Kind: KindErrno, Errno: errno} }

// HandlerFunc emulates one syscall.
type HandlerFunc func(*ThreadContext, *Args) Result

// Resolver maps a simulated hostname to its IPv4 address.
type Resolver func(name string) (netip.Addr, bool)

// Handler owns the dispatch table.
type Handler struct {
	emulated    map[int64]HandlerFunc
	native      map[int64]string
	unsupported map[int64]string
	resolver    Resolver

	logger *logger.Logger
}

// shimOnly syscalls must have been intercepted before reaching the
// dispatcher; seeing one here is a simulator bug.
var shimOnly = map[int64]string{
	unix.SYS_CLOCK_GETTIME: "clock_gettime",
	unix.SYS_GETTIMEOFDAY:  "gettimeofday",
	unix.SYS_SCHED_YIELD:   "sched_yield",
	unix.SYS_TIME:          "time",
}

// NewHandler builds the dispatch table. resolver may be nil, in which case
// hostname resolution fails with ENOENT.
func NewHandler(resolver Resolver) *Handler {
	h := &Handler{
		resolver: resolver,
		logger:   logger.GetLogger("syscalls"),
	}
	h.emulated = map[int64]HandlerFunc{
		SysYield:              h.yield,
		SysInitMemoryManager:  h.initMemoryManager,
		SysHostnameToAddrIPv4: h.hostnameToAddrIPv4,
		unix.SYS_GETPID:       h.getpid,
		unix.SYS_GETTID:       h.gettid,
		unix.SYS_GETPPID:      h.getppid,
	}
	h.native = map[int64]string{
		unix.SYS_SCHED_GETAFFINITY: "sched_getaffinity",
		unix.SYS_MPROTECT:          "mprotect",
		unix.SYS_MADVISE:           "madvise",
		unix.SYS_GETRANDOM:         "getrandom",
	}
	h.unsupported = map[int64]string{
		unix.SYS_FORK:            "fork",
		unix.SYS_VFORK:           "vfork",
		unix.SYS_PTRACE:          "ptrace",
		unix.SYS_REBOOT:          "reboot",
		unix.SYS_KEXEC_LOAD:      "kexec_load",
		unix.SYS_PERF_EVENT_OPEN: "perf_event_open",
	}
	return h
}

// Dispatch routes one syscall to its category.
func (h *Handler) Dispatch(ctx *ThreadContext, args *Args) Result {
	if name, ok := shimOnly[args.Number]; ok {
		panic(fmt.Sprintf("syscalls: %s (%d) should have been intercepted before dispatch",
			name, args.Number))
	}
	if fn, ok := h.emulated[args.Number]; ok {
		return fn(ctx, args)
	}
	if name, ok := h.native[args.Number]; ok {
		h.logger.Trace("native syscall %s (%d)", name, args.Number)
		return Native()
	}
	if name, ok := h.unsupported[args.Number]; ok {
		h.logger.Warn("returning ENOSYS for explicitly unsupported syscall %s (%d)",
			name, args.Number)
		return Fail(unix.ENOSYS)
	}
	h.logger.Warn("returning ENOSYS for unmapped syscall %d", args.Number)
	return Fail(unix.ENOSYS)
}

func (h *Handler) yield(*ThreadContext, *Args) Result {
	return OK(0)
}

func (h *Handler) initMemoryManager(ctx *ThreadContext, _ *Args) Result {
	h.logger.Debug("memory manager init requested by process %d", ctx.ProcessID)
	return OK(0)
}

// hostnameToAddrIPv4 writes nothing back to guest memory here; the caller
// copies Result.Value out. Value holds the address as an integer with the
// first octet in the most significant byte (10.0.0.1 is 0x0A000001).
func (h *Handler) hostnameToAddrIPv4(ctx *ThreadContext, args *Args) Result {
	if h.resolver == nil {
		return Fail(unix.ENOENT)
	}
	name := hostnameArg(ctx, args)
	addr, ok := h.resolver(name)
	if !ok || !addr.Is4() {
		return Fail(unix.ENOENT)
	}
	b := addr.As4()
	v := uint64(b[0])<<24 | uint64(b[1])<<16 | uint64(b[2])<<8 | uint64(b[3])
	return OK(v)
}

// hostnameArg resolves the name operand. Guest memory inspection is
// handled by the memory layer; within the simulator a host resolves its
// own name when the pointer argument is zero.
func hostnameArg(ctx *ThreadContext, args *Args) string {
	if args.Arg[0] == 0 && ctx.Host != nil {
		return ctx.Host.Name()
	}
	return ""
}

func (h *Handler) getpid(ctx *ThreadContext, _ *Args) Result {
	return OK(uint64(ctx.ProcessID))
}

func (h *Handler) gettid(ctx *ThreadContext, _ *Args) Result {
	return OK(uint64(ctx.ThreadID))
}

func (h *Handler) getppid(*ThreadContext, *Args) Result {
	// the init process of every simulated host has ppid 0
	return OK(0)
}
