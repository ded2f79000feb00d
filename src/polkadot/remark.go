package polkadot

import (
	"context"
	"fmt"
	"strings"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/rs/zerolog"
)

// NonceBook is the challenge store the watcher confirms against.
type NonceBook interface {
	GetNonce(ctx context.Context, addr string) (string, error)
	ConfirmNonce(ctx context.Context, addr string) error
}

// RemarkWatcher confirms air-gapped sign-in challenges: a principal proves
// control of its account by submitting its pending nonce as a system.remark.
type RemarkWatcher struct {
	client *Client
	nonces NonceBook
	log    zerolog.Logger
}

func NewRemarkWatcher(client *Client, nonces NonceBook, log zerolog.Logger) *RemarkWatcher {
	return &RemarkWatcher{client: client, nonces: nonces, log: log}
}

// Run follows new heads until ctx is cancelled or the subscription fails.
func (w *RemarkWatcher) Run(ctx context.Context) error {
	remarkIdx, err := w.client.meta.FindCallIndex("System.remark")
	if err != nil {
		return fmt.Errorf("find System.remark: %w", err)
	}

	sub, err := w.client.api.RPC.Chain.SubscribeNewHeads()
	if err != nil {
		return fmt.Errorf("subscribe heads: %w", err)
	}
	defer sub.Unsubscribe()

	w.log.Info().Msg("remark watcher: following new heads")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			return fmt.Errorf("head subscription: %w", err)
		case head := <-sub.Chan():
			if err := w.scan(ctx, uint64(head.Number), remarkIdx); err != nil {
				w.log.Warn().Err(err).Uint64("block", uint64(head.Number)).Msg("remark watcher: scan failed")
			}
		}
	}
}

func (w *RemarkWatcher) scan(ctx context.Context, number uint64, remarkIdx types.CallIndex) error {
	hash, err := w.client.api.RPC.Chain.GetBlockHash(number)
	if err != nil {
		return err
	}
	block, err := w.client.api.RPC.Chain.GetBlock(hash)
	if err != nil {
		return err
	}

	for _, ext := range block.Block.Extrinsics {
		if !ext.IsSigned() || !ext.Signature.Signer.IsID || ext.Method.CallIndex != remarkIdx {
			continue
		}
		var remark types.Bytes
		if err := codec.Decode(ext.Method.Args, &remark); err != nil {
			continue
		}
		addr, err := EncodeSS58(ext.Signature.Signer.AsID.ToBytes(), w.client.prefix)
		if err != nil {
			continue
		}
		pending, err := w.nonces.GetNonce(ctx, addr)
		if err != nil || !MatchRemark(remark, pending) {
			continue
		}
		if err := w.nonces.ConfirmNonce(ctx, addr); err != nil {
			return fmt.Errorf("confirm nonce for %s: %w", addr, err)
		}
		w.log.Info().Str("addr", addr).Uint64("block", number).Msg("remark watcher: challenge confirmed")
	}
	return nil
}

// MatchRemark reports whether a remark carries the pending challenge.
func MatchRemark(remark []byte, pending string) bool {
	pending = strings.TrimSpace(pending)
	if len(pending) < 8 || pending == Confirmed {
		return false
	}
	return strings.TrimSpace(string(remark)) == pending
}

// Confirmed is stored in place of a nonce once its remark is seen.
const Confirmed = "CONFIRMED"
