package contracts

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackTransfer(t *testing.T) {
	to := common.HexToAddress("0xABC0000000000000000000000000000000000001")
	data, err := PackTransfer(to, big.NewInt(25_000_000))
	require.NoError(t, err)

	// transfer(address,uint256) selector
	assert.Equal(t, "a9059cbb", hex.EncodeToString(data[:4]))
	assert.Len(t, data, 4+32+32)

	gotTo, gotAmount, err := UnpackTransfer(data)
	require.NoError(t, err)
	assert.Equal(t, to, gotTo)
	assert.Equal(t, int64(25_000_000), gotAmount.Int64())
}

func TestPackTransferRejectsNonPositive(t *testing.T) {
	_, err := PackTransfer(common.Address{}, big.NewInt(0))
	assert.Error(t, err)
	_, err = PackTransfer(common.Address{}, nil)
	assert.Error(t, err)
}

func TestUnpackTransferRejectsOtherCalldata(t *testing.T) {
	_, _, err := UnpackTransfer([]byte{0x01, 0x02})
	assert.Error(t, err)

	// approve(address,uint256)
	approve, _ := hex.DecodeString("095ea7b3" + "0000000000000000000000000000000000000000000000000000000000000001" + "0000000000000000000000000000000000000000000000000000000000000001")
	_, _, err = UnpackTransfer(approve)
	assert.Error(t, err)
}
