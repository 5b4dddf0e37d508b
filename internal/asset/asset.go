package asset

// ID is the distinguishing handle of an asset. NativeID is reserved for the
// chain's native coin; every other handle refers to a registered fungible
// token or the stable reference asset.
type ID string

// NativeID is the reserved handle for the native coin.
const NativeID ID = "native"

// Kind classifies an asset for conversion and transfer purposes. The set is
// closed: every conversion and transfer site switches exhaustively over it,
// so adding a kind is a compile-visible decision.
type Kind int

const (
	KindNative Kind = iota
	KindRegistered
	KindStable
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindRegistered:
		return "registered"
	case KindStable:
		return "stable"
	default:
		return "unknown"
	}
}

// Asset is a registry record. Records are never deleted; deregistration only
// clears Supported, which blocks new deposits while standing balances remain
// withdrawable.
type Asset struct {
	ID          ID     `json:"id"`
	Decimals    uint8  `json:"decimals"`
	Supported   bool   `json:"supported"`
	Deposits    uint64 `json:"deposits"`
	Withdrawals uint64 `json:"withdrawals"`
}
