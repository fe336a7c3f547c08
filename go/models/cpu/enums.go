package cpu

// hook enums match unicorn's so they can be passed straight through
const (
	HOOK_INTR = 1
	HOOK_INSN = 2
	HOOK_CODE = 4

	// every memory error
	HOOK_MEM_ERR = 1008
)

const (
	MEM_READ_UNMAPPED  = 19
	MEM_WRITE_UNMAPPED = 20
	MEM_FETCH_UNMAPPED = 21
	MEM_WRITE_PROT     = 12
	MEM_READ_PROT      = 13
	MEM_FETCH_PROT     = 14
)

const (
	PROT_NONE  = 0
	PROT_READ  = 1
	PROT_WRITE = 2
	PROT_EXEC  = 4
	PROT_ALL   = 7

	PROT_RX = PROT_READ | PROT_EXEC
	PROT_RW = PROT_READ | PROT_WRITE
)

func ProtString(prot int) string {
	out := []byte("---")
	for i, c := range "rwx" {
		if prot&(1<<uint(i)) != 0 {
			out[i] = byte(c)
		}
	}
	return string(out)
}
