package models

type Ins interface {
	Addr() uint64
	Bytes() []byte
	Mnemonic() string
	OpStr() string
}

// InsString formats an instruction for listings, optionally with its bytes.
func InsString(ins Ins, showBytes bool) string {
	s := ""
	if showBytes {
		s = HexBytes(ins.Bytes(), 12) + " "
	}
	return s + ins.Mnemonic() + " " + ins.OpStr()
}
