package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func addressString(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return addr.Hex()
}

func bpsString(v uint16) string {
	return strconv.FormatUint(uint64(v), 10)
}
