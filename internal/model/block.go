package model

import (
	"encoding/json"
	"time"
)

// Ledger inclusion states reported by the node.
const (
	InclusionIncluded      = "included"
	InclusionConflicting   = "conflicting"
	InclusionNoTransaction = "noTransaction"
)

// BlockMetadata is the subset of the node's block metadata we poll for.
type BlockMetadata struct {
	BlockID                    string `json:"blockId"`
	LedgerInclusionState       string `json:"ledgerInclusionState,omitempty"`
	ReferencedByMilestoneIndex int64  `json:"referencedByMilestoneIndex,omitempty"`
}

// Confirmed reports whether the node reached a verdict.
func (m BlockMetadata) Confirmed() bool { return m.LedgerInclusionState != "" }

// Included reports whether the block was confirmed into the ledger.
func (m BlockMetadata) Included() bool { return m.LedgerInclusionState == InclusionIncluded }

// Block is a full block as returned by the node; only the payload is kept.
type Block struct {
	ProtocolVersion int             `json:"protocolVersion,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

// MilestoneTransaction is one row of <network>_transactions; processed is
// flipped by downstream consumers.
type MilestoneTransaction struct {
	UID       string    `db:"uid"`
	BlockID   string    `db:"blockId"`
	ParentID  string    `db:"parentId"`
	Milestone int64     `db:"milestone"`
	CreatedOn time.Time `db:"createdOn"`
	Payload   []byte    `db:"payload"`
	Processed bool      `db:"processed"`
}
