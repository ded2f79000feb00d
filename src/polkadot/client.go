// Package polkadot holds the Substrate plumbing used by the commons service:
// SS58 principals, storage keys, treasury payouts and the system.remark
// watcher behind air-gapped sign-in.
package polkadot

import (
	"encoding/hex"
	"fmt"
	"sync"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// Client is a thin wrapper over a gsrpc connection with cached metadata.
type Client struct {
	api    *gsrpc.SubstrateAPI
	meta   *types.Metadata
	prefix uint16

	submitMu sync.Mutex
}

// NewClient connects and loads the latest metadata.
func NewClient(url string, prefix uint16) (*Client, error) {
	api, err := gsrpc.NewSubstrateAPI(url)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}
	meta, err := api.RPC.State.GetMetadataLatest()
	if err != nil {
		api.Client.Close()
		return nil, fmt.Errorf("get metadata: %w", err)
	}
	return &Client{api: api, meta: meta, prefix: prefix}, nil
}

func (c *Client) Close() {
	c.api.Client.Close()
}

// Prefix is the SS58 network prefix principals are encoded with.
func (c *Client) Prefix() uint16 { return c.prefix }

// AccountNonce reads System.Account for pub.
func (c *Client) AccountNonce(pub []byte) (uint32, error) {
	var info types.AccountInfo
	ok, err := c.api.RPC.State.GetStorageLatest(types.NewStorageKey(SystemAccountKey(pub)), &info)
	if err != nil {
		return 0, fmt.Errorf("read account %x: %w", pub, err)
	}
	if !ok {
		return 0, nil
	}
	return uint32(info.Nonce), nil
}

// Transfer submits Balances.transfer_keep_alive signed by from and returns
// the extrinsic hash. Submissions are serialized so nonces do not collide.
func (c *Client) Transfer(from signature.KeyringPair, dest string, amount uint64) (string, error) {
	pub, err := PublicKey(dest)
	if err != nil {
		return "", err
	}
	to, err := types.NewMultiAddressFromHexAccountID("0x" + hex.EncodeToString(pub))
	if err != nil {
		return "", fmt.Errorf("destination: %w", err)
	}
	call, err := types.NewCall(c.meta, "Balances.transfer_keep_alive", to, types.NewUCompactFromUInt(amount))
	if err != nil {
		return "", fmt.Errorf("build call: %w", err)
	}

	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	genesis, err := c.api.RPC.Chain.GetBlockHash(0)
	if err != nil {
		return "", fmt.Errorf("genesis hash: %w", err)
	}
	rv, err := c.api.RPC.State.GetRuntimeVersionLatest()
	if err != nil {
		return "", fmt.Errorf("runtime version: %w", err)
	}
	nonce, err := c.AccountNonce(from.PublicKey)
	if err != nil {
		return "", err
	}

	ext := types.NewExtrinsic(call)
	err = ext.Sign(from, types.SignatureOptions{
		BlockHash:          genesis,
		Era:                types.ExtrinsicEra{IsImmortalEra: true},
		GenesisHash:        genesis,
		Nonce:              types.NewUCompactFromUInt(uint64(nonce)),
		SpecVersion:        rv.SpecVersion,
		Tip:                types.NewUCompactFromUInt(0),
		TransactionVersion: rv.TransactionVersion,
	})
	if err != nil {
		return "", fmt.Errorf("sign transfer: %w", err)
	}

	hash, err := c.api.RPC.Author.SubmitExtrinsic(ext)
	if err != nil {
		return "", fmt.Errorf("submit transfer: %w", err)
	}
	return hash.Hex(), nil
}
