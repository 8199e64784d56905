package driver

import "github.com/libp2p/go-libp2p/core/protocol"

// SyncProtocol is the stream protocol ID for the pairwise sync exchange of
// §6: a length-prefixed, canonically-encoded exchange of poset state.
const SyncProtocol = protocol.ID("/aleph/sync/1.0.0")

// CoinShareTopic is the GossipSub topic used to broadcast threshold coin
// shares (§4.4) alongside pairwise sync, so a quorum can be combined
// without waiting on O(N^2) sync rounds to surface every share.
const CoinShareTopic = "/aleph/coin/1.0.0"

// ProtocolVersion lets two processes detect a skewed build before trusting
// a sync exchange; bump on any wire-incompatible change.
const ProtocolVersion uint32 = 1
