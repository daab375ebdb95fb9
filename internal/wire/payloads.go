package wire

import (
	"github.com/dignetwork/chia-block-listener/internal/blockmodel"
	"github.com/dignetwork/chia-block-listener/internal/chiaerr"
	"github.com/holiman/uint256"
)

// NodeType mirrors the wire protocol's node_type field (spec.md §4.3).
type NodeType uint8

const (
	NodeTypeFullNode NodeType = 1
	NodeTypeWallet   NodeType = 3
)

// Capability is a (capability code, version) pair advertised during the
// handshake.
type Capability struct {
	Type    uint16
	Version string
}

// Capability type codes advertised in the handshake (spec.md §4.3).
const (
	CapabilityBase         uint16 = 1
	CapabilityBlockHeaders uint16 = 2
	CapabilityRateLimitsV2 uint16 = 3
)

// Handshake is the first frame exchanged on every connection.
type Handshake struct {
	NetworkID       string
	ProtocolVersion string
	SoftwareVersion string
	ServerPort      uint16
	NodeType        NodeType
	Capabilities    []Capability
}

// OurHandshake builds the handshake this client sends (spec.md §4.3): node
// kind WALLET, protocol version "0.0.37", server_port 0, and the fixed
// capability set.
func OurHandshake(networkID, softwareVersion string) Handshake {
	return Handshake{
		NetworkID:       networkID,
		ProtocolVersion: "0.0.37",
		SoftwareVersion: softwareVersion,
		ServerPort:      0,
		NodeType:        NodeTypeWallet,
		Capabilities: []Capability{
			{Type: CapabilityBase, Version: "1"},
			{Type: CapabilityBlockHeaders, Version: "1"},
			{Type: CapabilityRateLimitsV2, Version: "1"},
		},
	}
}

func (h Handshake) Encode() []byte {
	w := newStreamWriter()
	w.str(h.NetworkID)
	w.str(h.ProtocolVersion)
	w.str(h.SoftwareVersion)
	w.u16(h.ServerPort)
	w.u8(uint8(h.NodeType))
	w.u32(uint32(len(h.Capabilities)))
	for _, c := range h.Capabilities {
		w.u16(c.Type)
		w.str(c.Version)
	}
	return w.Bytes()
}

func DecodeHandshake(payload []byte) (Handshake, error) {
	r := newStreamReader(payload)
	var h Handshake
	var err error
	if h.NetworkID, err = r.str(); err != nil {
		return h, decodeErr(err)
	}
	if h.ProtocolVersion, err = r.str(); err != nil {
		return h, decodeErr(err)
	}
	if h.SoftwareVersion, err = r.str(); err != nil {
		return h, decodeErr(err)
	}
	if h.ServerPort, err = r.u16(); err != nil {
		return h, decodeErr(err)
	}
	nt, err := r.u8()
	if err != nil {
		return h, decodeErr(err)
	}
	h.NodeType = NodeType(nt)
	n, err := r.u32()
	if err != nil {
		return h, decodeErr(err)
	}
	h.Capabilities = make([]Capability, n)
	for i := range h.Capabilities {
		typ, err := r.u16()
		if err != nil {
			return h, decodeErr(err)
		}
		ver, err := r.str()
		if err != nil {
			return h, decodeErr(err)
		}
		h.Capabilities[i] = Capability{Type: typ, Version: ver}
	}
	return h, nil
}

// RequestBlock asks for a full block at a given height.
type RequestBlock struct {
	Height                  uint32
	IncludeTransactionBlock bool
}

func (r RequestBlock) Encode() []byte {
	w := newStreamWriter()
	w.u32(r.Height)
	w.boolean(r.IncludeTransactionBlock)
	return w.Bytes()
}

func DecodeRequestBlock(payload []byte) (RequestBlock, error) {
	r := newStreamReader(payload)
	var out RequestBlock
	var err error
	if out.Height, err = r.u32(); err != nil {
		return out, decodeErr(err)
	}
	if out.IncludeTransactionBlock, err = r.boolean(); err != nil {
		return out, decodeErr(err)
	}
	return out, nil
}

// RespondBlock carries the requested FullBlock.
type RespondBlock struct {
	Block blockmodel.FullBlock
}

func (r RespondBlock) Encode() []byte {
	w := newStreamWriter()
	encodeFullBlock(w, r.Block)
	return w.Bytes()
}

func DecodeRespondBlock(payload []byte) (RespondBlock, error) {
	r := newStreamReader(payload)
	block, err := decodeFullBlock(r)
	if err != nil {
		return RespondBlock{}, decodeErr(err)
	}
	return RespondBlock{Block: block}, nil
}

// RejectBlock is returned by a peer that will not serve a requested
// height.
type RejectBlock struct {
	Height uint32
}

func (r RejectBlock) Encode() []byte {
	w := newStreamWriter()
	w.u32(r.Height)
	return w.Bytes()
}

func DecodeRejectBlock(payload []byte) (RejectBlock, error) {
	r := newStreamReader(payload)
	height, err := r.u32()
	if err != nil {
		return RejectBlock{}, decodeErr(err)
	}
	return RejectBlock{Height: height}, nil
}

// NewPeakWallet announces the wallet-visible chain tip.
type NewPeakWallet struct {
	HeaderHash            blockmodel.Hash32
	Height                uint32
	Weight                *uint256.Int
	ForkPointWithPrevPeak uint32
}

func (n NewPeakWallet) Encode() []byte {
	w := newStreamWriter()
	w.hash32(n.HeaderHash)
	w.u32(n.Height)
	weightBytes := weightToBytes(n.Weight)
	w.bytesField(weightBytes)
	w.u32(n.ForkPointWithPrevPeak)
	return w.Bytes()
}

func DecodeNewPeakWallet(payload []byte) (NewPeakWallet, error) {
	r := newStreamReader(payload)
	var out NewPeakWallet
	hh, err := r.hash32()
	if err != nil {
		return out, decodeErr(err)
	}
	out.HeaderHash = hh
	if out.Height, err = r.u32(); err != nil {
		return out, decodeErr(err)
	}
	wb, err := r.bytesField()
	if err != nil {
		return out, decodeErr(err)
	}
	out.Weight = bytesToWeight(wb)
	if out.ForkPointWithPrevPeak, err = r.u32(); err != nil {
		return out, decodeErr(err)
	}
	return out, nil
}

func decodeErr(err error) error {
	return chiaerr.Wrap(chiaerr.KindDecode, err)
}

func weightToBytes(w *uint256.Int) []byte {
	if w == nil {
		return nil
	}
	b := w.Bytes()
	return b
}

func bytesToWeight(b []byte) *uint256.Int {
	return new(uint256.Int).SetBytes(b)
}

// encodeFullBlock/decodeFullBlock serialize the FullBlock subset this
// core reads (spec.md §3): reward_chain_block.{height,weight},
// foliage.{prev_block_hash, reward_block_hash, foliage_block_data...,
// raw bytes for header-hash purposes}, optional foliage_transaction_block
// timestamp, optional transactions_info reward claims, optional
// transactions_generator and its ref list.
func encodeFullBlock(w *streamWriter, b blockmodel.FullBlock) {
	w.u32(b.RewardChainBlock.Height)
	w.bytesField(weightToBytes(b.RewardChainBlock.Weight))

	w.hash32(b.Foliage.PrevBlockHash)
	w.hash32(b.Foliage.RewardBlockHash)
	w.hash32(b.Foliage.FoliageBlockData.FarmerRewardPuzzleHash)
	w.hash32(b.Foliage.FoliageBlockData.PoolTarget.PuzzleHash)
	w.bytesField(b.Foliage.Raw)

	if b.FoliageTransactionBlock != nil {
		w.boolean(true)
		w.u64(b.FoliageTransactionBlock.Timestamp)
	} else {
		w.boolean(false)
	}

	if b.TransactionsInfo != nil {
		w.boolean(true)
		w.u32(uint32(len(b.TransactionsInfo.RewardClaimsIncorporated)))
		for _, c := range b.TransactionsInfo.RewardClaimsIncorporated {
			w.hash32(c.ParentID)
			w.hash32(c.PuzzleHash)
			w.u64(c.Amount)
		}
	} else {
		w.boolean(false)
	}

	if b.TransactionsGenerator != nil {
		w.boolean(true)
		w.bytesField(b.TransactionsGenerator)
	} else {
		w.boolean(false)
	}
	w.u32List(b.TransactionsGeneratorRefList)
}

func decodeFullBlock(r *streamReader) (blockmodel.FullBlock, error) {
	var b blockmodel.FullBlock
	var err error
	if b.RewardChainBlock.Height, err = r.u32(); err != nil {
		return b, err
	}
	weightBytes, err := r.bytesField()
	if err != nil {
		return b, err
	}
	b.RewardChainBlock.Weight = bytesToWeight(weightBytes)

	if b.Foliage.PrevBlockHash, err = r.hash32(); err != nil {
		return b, err
	}
	if b.Foliage.RewardBlockHash, err = r.hash32(); err != nil {
		return b, err
	}
	if b.Foliage.FoliageBlockData.FarmerRewardPuzzleHash, err = r.hash32(); err != nil {
		return b, err
	}
	if b.Foliage.FoliageBlockData.PoolTarget.PuzzleHash, err = r.hash32(); err != nil {
		return b, err
	}
	if b.Foliage.Raw, err = r.bytesField(); err != nil {
		return b, err
	}

	hasTxBlock, err := r.boolean()
	if err != nil {
		return b, err
	}
	if hasTxBlock {
		ts, err := r.u64()
		if err != nil {
			return b, err
		}
		b.FoliageTransactionBlock = &blockmodel.FoliageTransactionBlock{Timestamp: ts}
	}

	hasTxInfo, err := r.boolean()
	if err != nil {
		return b, err
	}
	if hasTxInfo {
		n, err := r.u32()
		if err != nil {
			return b, err
		}
		claims := make([]blockmodel.Coin, n)
		for i := range claims {
			pid, err := r.hash32()
			if err != nil {
				return b, err
			}
			ph, err := r.hash32()
			if err != nil {
				return b, err
			}
			amt, err := r.u64()
			if err != nil {
				return b, err
			}
			claims[i] = blockmodel.Coin{ParentID: pid, PuzzleHash: ph, Amount: amt}
		}
		b.TransactionsInfo = &blockmodel.TransactionsInfo{RewardClaimsIncorporated: claims}
	}

	hasGenerator, err := r.boolean()
	if err != nil {
		return b, err
	}
	if hasGenerator {
		gen, err := r.bytesField()
		if err != nil {
			return b, err
		}
		b.TransactionsGenerator = gen
	}
	if b.TransactionsGeneratorRefList, err = r.u32List(); err != nil {
		return b, err
	}
	return b, nil
}
