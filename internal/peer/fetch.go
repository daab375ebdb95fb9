package peer

import (
	"context"

	"github.com/dignetwork/chia-block-listener/internal/blockmodel"
)

// GetBlockByHeight is the block fetcher (spec.md §4.5): a thin operation
// over the session's request/response machinery with
// include_transaction_block forced true.
func (s *Session) GetBlockByHeight(ctx context.Context, height uint32) (blockmodel.FullBlock, error) {
	return s.RequestBlock(ctx, height)
}
