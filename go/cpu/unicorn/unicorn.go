package unicorn

import (
	"github.com/pkg/errors"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/ST3ALth/xenia/go/models"
	"github.com/ST3ALth/xenia/go/models/cpu"
)

type Builder struct {
	Arch, Mode int
}

var X86_64 = &Builder{Arch: uc.ARCH_X86, Mode: uc.MODE_64}

func (b *Builder) New() (*UnicornCpu, error) {
	u, err := uc.NewUnicorn(b.Arch, b.Mode)
	if err != nil {
		return nil, errors.Wrap(err, "NewUnicorn() failed")
	}
	return &UnicornCpu{u}, nil
}

type UnicornCpu struct {
	uc.Unicorn
}

var _ cpu.Cpu = &UnicornCpu{}

func (u *UnicornCpu) HookAdd(htype int, cb interface{}, start uint64, end uint64, extra ...int) (cpu.Hook, error) {
	// wrap hooks so callers get a cpu.Cpu instead of the raw binding
	var wrap interface{}
	switch htype {
	case cpu.HOOK_CODE:
		cbc := cb.(func(cpu.Cpu, uint64, uint32))
		wrap = func(_ uc.Unicorn, addr uint64, size uint32) { cbc(u, addr, size) }

	case cpu.HOOK_INTR:
		cbc := cb.(func(cpu.Cpu, uint32))
		wrap = func(_ uc.Unicorn, intno uint32) { cbc(u, intno) }

	case cpu.HOOK_INSN:
		wrap = cb

	default:
		if htype&uc.HOOK_MEM_INVALID != 0 {
			cbc := cb.(func(cpu.Cpu, int, uint64, int, int64) bool)
			wrap = func(_ uc.Unicorn, access int, addr uint64, size int, val int64) bool {
				return cbc(u, access, addr, size, val)
			}
		} else {
			return 0, errors.New("Unknown hook type.")
		}
	}
	return u.Unicorn.HookAdd(htype, wrap, start, end, extra...)
}

func (u *UnicornCpu) HookDel(hh cpu.Hook) error {
	return u.Unicorn.HookDel(hh.(uc.Hook))
}

func (u *UnicornCpu) MemProt(addr, size uint64, prot int) error {
	return u.Unicorn.MemProtect(addr, size, prot)
}

var ucRegs = [models.HostRegCount]int{
	uc.X86_REG_RAX, uc.X86_REG_RCX, uc.X86_REG_RDX, uc.X86_REG_RBX,
	uc.X86_REG_RSP, uc.X86_REG_RBP, uc.X86_REG_RSI, uc.X86_REG_RDI,
	uc.X86_REG_R8, uc.X86_REG_R9, uc.X86_REG_R10, uc.X86_REG_R11,
	uc.X86_REG_R12, uc.X86_REG_R13, uc.X86_REG_R14, uc.X86_REG_R15,
	uc.X86_REG_RIP, uc.X86_REG_EFLAGS,
}

// HostRegRead reads a register by models enum (models.RAX...models.EFLAGS).
func (u *UnicornCpu) HostRegRead(enum int) (uint64, error) {
	return u.RegRead(ucRegs[enum])
}

func (u *UnicornCpu) HostRegWrite(enum int, val uint64) error {
	return u.RegWrite(ucRegs[enum], val)
}

// Context snapshots the general purpose registers, rip and eflags.
func (u *UnicornCpu) Context() (*models.HostContext, error) {
	ctx := &models.HostContext{}
	for i := 0; i < models.HostRegCount; i++ {
		val, err := u.RegRead(ucRegs[i])
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", models.HostRegNames[i])
		}
		ctx.SetReg(i, val)
	}
	return ctx, nil
}

func (u *UnicornCpu) SetContext(ctx *models.HostContext) error {
	for i := 0; i < models.HostRegCount; i++ {
		if err := u.RegWrite(ucRegs[i], ctx.Reg(i)); err != nil {
			return errors.Wrapf(err, "writing %s", models.HostRegNames[i])
		}
	}
	return nil
}
