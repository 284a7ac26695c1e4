package relay

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/jmehdipour/dbrelay/internal/model"
)

func TestParseChangeNotice(t *testing.T) {
	c := qt.New(t)

	n, err := ParseChangeNotice("ontransactionwrite:42")
	c.Assert(err, qt.IsNil)
	c.Check(n, qt.Equals, model.ChangeNotice{Channel: "ontransactionwrite", UID: 42})

	n, err = ParseChangeNotice("ns:onwrite:7")
	c.Assert(err, qt.IsNil)
	c.Check(n, qt.Equals, model.ChangeNotice{Channel: "ns:onwrite", UID: 7})

	for _, bad := range []string{"", "42", ":42", "onwrite:", "onwrite:x1", " :3"} {
		_, err := ParseChangeNotice(bad)
		c.Check(err, qt.ErrorIs, ErrMalformedNotice, qt.Commentf("payload %q", bad))
	}
}

func TestParseUpsertNotice(t *testing.T) {
	c := qt.New(t)

	n, err := ParseUpsertNotice(`{"table":"nft","uid":"X"}`)
	c.Assert(err, qt.IsNil)
	c.Check(n, qt.Equals, model.UpsertNotice{Table: "nft", UID: "X"})

	n, err = ParseUpsertNotice(`{"table":"bids","uid":12,"parentId":"N1"}`)
	c.Assert(err, qt.IsNil)
	c.Check(n, qt.Equals, model.UpsertNotice{Table: "bids", UID: "12", ParentID: "N1"})

	n, err = ParseUpsertNotice(`{"table":"nft","uid":"X","parentId":null}`)
	c.Assert(err, qt.IsNil)
	c.Check(n.ParentID, qt.Equals, "")

	for _, bad := range []string{`nft:X`, `{"uid":"X"}`, `{"table":"nft"}`, `{"table":"nft","uid":{"a":1}}`, `{"table":"nft","uid":true}`} {
		_, err := ParseUpsertNotice(bad)
		c.Check(err, qt.ErrorIs, ErrMalformedNotice, qt.Commentf("payload %s", bad))
	}
}
