package settle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/openvenue/matchd/pkg/match"
)

// The venue contract settles fills through matchOrders, which takes the
// order ids of each batch flattened as (buy, sell) pairs.
const venueABI = `[{"name":"matchOrders","type":"function","stateMutability":"nonpayable","inputs":[{"name":"orderIds","type":"bytes32[]"}],"outputs":[]}]`

// EVMClient submits settlement batches as EIP-1559 transactions to the venue
// contract. Each call signs with the batch's identity and consumes one of
// that identity's sequence numbers.
type EVMClient struct {
	eth      *ethclient.Client
	contract common.Address
	chainID  *big.Int
	abi      abi.ABI
	log      *zap.SugaredLogger

	lastTxID atomic.Value // string
	lastGas  atomic.Uint64
}

func NewEVMClient(rpcURL, contractHex string, chainID int64, log *zap.SugaredLogger) (*EVMClient, error) {
	if !common.IsHexAddress(contractHex) {
		return nil, fmt.Errorf("invalid venue contract address %q", contractHex)
	}
	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial settlement rpc: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(venueABI))
	if err != nil {
		return nil, fmt.Errorf("parse venue abi: %w", err)
	}
	return &EVMClient{
		eth:      eth,
		contract: common.HexToAddress(contractHex),
		chainID:  big.NewInt(chainID),
		abi:      parsed,
		log:      log,
	}, nil
}

// InitSequences seeds every identity's sequence counter from the settlement
// layer's pending transaction count. Called once at startup; after that the
// counters advance locally and are re-seeded whenever a submission fails.
func (c *EVMClient) InitSequences(ctx context.Context, pool *Pool) error {
	for _, s := range pool.All() {
		if err := resyncSequence(ctx, c.eth, s); err != nil {
			return fmt.Errorf("pending nonce for %s: %w", s.Address().Hex(), err)
		}
	}
	return nil
}

// sequenceReader reports an identity's pending transaction count on the
// settlement layer. Satisfied by ethclient.Client.
type sequenceReader interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// resyncSequence re-seeds the identity's counter from the settlement layer.
// A sequence number claimed for a transaction that never lands leaves every
// later transaction from that identity gapped behind it and unminable, so
// failed submissions must resync before the identity signs again.
func resyncSequence(ctx context.Context, src sequenceReader, s *Signer) error {
	nonce, err := src.PendingNonceAt(ctx, s.Address())
	if err != nil {
		return err
	}
	s.SetSequence(nonce)
	return nil
}

// SubmitBatch settles one batch of fills under the given identity and waits
// for the transaction to be mined. A reverted transaction is an error.
func (c *EVMClient) SubmitBatch(ctx context.Context, signer *Signer, fills []match.Fill) error {
	ids := make([][32]byte, 0, 2*len(fills))
	for _, f := range fills {
		ids = append(ids, common.HexToHash(f.BuyID), common.HexToHash(f.SellID))
	}

	data, err := c.abi.Pack("matchOrders", ids)
	if err != nil {
		return fmt.Errorf("pack matchOrders: %w", err)
	}

	tipCap, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return fmt.Errorf("suggest tip cap: %w", err)
	}
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("head block: %w", err)
	}
	feeCap := new(big.Int).Add(tipCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	from := signer.Address()
	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &c.contract,
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     signer.NextSequence(),
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &c.contract,
		Data:      data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), signer.PrivateKey())
	if err != nil {
		c.resync(signer)
		return fmt.Errorf("sign tx: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		c.resync(signer)
		return fmt.Errorf("send tx: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, c.eth, signed)
	if err != nil {
		c.resync(signer)
		return fmt.Errorf("wait mined %s: %w", signed.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		// The reverted transaction still consumed its sequence number,
		// so the counter stays as claimed.
		return fmt.Errorf("tx %s reverted", signed.Hash().Hex())
	}

	c.lastTxID.Store(signed.Hash().Hex())
	c.lastGas.Store(receipt.GasUsed)
	return nil
}

// resync re-seeds one identity's counter after a failed submission. The
// submission context may already be expired by then, so the resync runs on
// its own short deadline.
func (c *EVMClient) resync(signer *Signer) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := resyncSequence(ctx, c.eth, signer); err != nil {
		c.log.Errorw("sequence resync failed", "identity", signer.Address().Hex(), "err", err)
		return
	}
	c.log.Infow("sequence resynced", "identity", signer.Address().Hex())
}

// LastReceipt reports the most recently mined settlement transaction, for
// the round log. Zero values before the first confirmation.
func (c *EVMClient) LastReceipt() (txID string, gasUsed uint64) {
	if v := c.lastTxID.Load(); v != nil {
		txID = v.(string)
	}
	return txID, c.lastGas.Load()
}

func (c *EVMClient) Close() {
	c.eth.Close()
}

var _ Client = (*EVMClient)(nil)
