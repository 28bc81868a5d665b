package onchain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract ABIs
var (
	marketABI  abi.ABI
	factoryABI abi.ABI
	erc20ABI   abi.ABI
)

func init() {
	var err error

	marketABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "getMarketInfo",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [
				{"name": "marketId", "type": "uint256"},
				{"name": "betToken", "type": "address"},
				{"name": "phase", "type": "uint8"},
				{"name": "strikePrice", "type": "int256"},
				{"name": "strikePriceExpo", "type": "int32"},
				{"name": "resolutionPrice", "type": "int256"},
				{"name": "resolutionPriceExpo", "type": "int32"},
				{"name": "outcome", "type": "uint8"},
				{"name": "startTime", "type": "uint64"},
				{"name": "commitDeadline", "type": "uint64"},
				{"name": "expiryTime", "type": "uint64"},
				{"name": "revealDeadline", "type": "uint64"},
				{"name": "fixedEscrow", "type": "uint256"},
				{"name": "commitCount", "type": "uint32"},
				{"name": "revealCount", "type": "uint32"},
				{"name": "upPool", "type": "uint256"},
				{"name": "downPool", "type": "uint256"},
				{"name": "totalForfeited", "type": "uint256"}
			]
		},
		{
			"name": "commit",
			"type": "function",
			"inputs": [{"name": "commitmentHash", "type": "bytes32"}],
			"outputs": []
		},
		{
			"name": "reveal",
			"type": "function",
			"inputs": [
				{"name": "direction", "type": "uint8"},
				{"name": "amount", "type": "uint256"},
				{"name": "salt", "type": "uint256"}
			],
			"outputs": []
		},
		{"name": "claim", "type": "function", "inputs": [], "outputs": []},
		{"name": "refund", "type": "function", "inputs": [], "outputs": []},
		{
			"name": "resolve",
			"type": "function",
			"inputs": [
				{"name": "price", "type": "int64"},
				{"name": "expo", "type": "int32"}
			],
			"outputs": []
		},
		{"name": "finalize", "type": "function", "inputs": [], "outputs": []}
	]`))
	if err != nil {
		panic("market abi parse: " + err.Error())
	}

	factoryABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "createMarket",
			"type": "function",
			"inputs": [
				{"name": "betToken", "type": "address"},
				{"name": "fixedEscrow", "type": "uint256"},
				{"name": "strikePrice", "type": "int64"},
				{"name": "strikePriceExpo", "type": "int32"},
				{"name": "commitDuration", "type": "uint64"},
				{"name": "closedDuration", "type": "uint64"},
				{"name": "revealDuration", "type": "uint64"},
				{"name": "feeCollector", "type": "address"}
			],
			"outputs": [{"name": "market", "type": "address"}]
		},
		{
			"name": "getMarketCount",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "getMarket",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "marketId", "type": "uint256"}],
			"outputs": [{"name": "", "type": "address"}]
		}
	]`))
	if err != nil {
		panic("factory abi parse: " + err.Error())
	}

	erc20ABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "approve",
			"type": "function",
			"inputs": [
				{"name": "spender", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		},
		{
			"name": "allowance",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "spender", "type": "address"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`))
	if err != nil {
		panic("erc20 abi parse: " + err.Error())
	}
}
