package model

import (
	"encoding/json"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestUpsertKeyEqualityByValue(t *testing.T) {
	c := qt.New(t)

	var a, b UpsertNotice
	c.Assert(json.Unmarshal([]byte(`{"table":"nft","uid":"X"}`), &a), qt.IsNil)
	c.Assert(json.Unmarshal([]byte(`{"table":"nft","uid":"X"}`), &b), qt.IsNil)

	seen := map[UpsertKey]struct{}{}
	seen[a.Key()] = struct{}{}
	seen[b.Key()] = struct{}{}
	c.Check(seen, qt.HasLen, 1)

	seen[UpsertNotice{Table: "nft", UID: "X", ParentID: "P"}.Key()] = struct{}{}
	c.Check(seen, qt.HasLen, 2)
}

func TestBlockMetadataStates(t *testing.T) {
	c := qt.New(t)

	var m BlockMetadata
	c.Assert(json.Unmarshal([]byte(`{"blockId":"0xab","isSolid":true}`), &m), qt.IsNil)
	c.Check(m.Confirmed(), qt.IsFalse)

	c.Assert(json.Unmarshal([]byte(`{"blockId":"0xab","ledgerInclusionState":"included","referencedByMilestoneIndex":77}`), &m), qt.IsNil)
	c.Check(m.Confirmed(), qt.IsTrue)
	c.Check(m.Included(), qt.IsTrue)
	c.Check(m.ReferencedByMilestoneIndex, qt.Equals, int64(77))
}
