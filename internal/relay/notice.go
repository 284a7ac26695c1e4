package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmehdipour/dbrelay/internal/model"
)

var ErrMalformedNotice = errors.New("malformed notice")

// ParseChangeNotice parses a `trigger` payload "<channel>:<uid>". The uid is
// taken after the last colon so channel names may contain colons.
func ParseChangeNotice(payload string) (model.ChangeNotice, error) {
	i := strings.LastIndexByte(payload, ':')
	if i <= 0 {
		return model.ChangeNotice{}, fmt.Errorf("%w: %q", ErrMalformedNotice, payload)
	}
	channel := strings.TrimSpace(payload[:i])
	uid, err := strconv.ParseInt(strings.TrimSpace(payload[i+1:]), 10, 64)
	if err != nil || channel == "" {
		return model.ChangeNotice{}, fmt.Errorf("%w: %q", ErrMalformedNotice, payload)
	}
	return model.ChangeNotice{Channel: channel, UID: uid}, nil
}

// ParseUpsertNotice parses an `onupsert` payload {"table","uid","parentId"?}.
// Numeric uid and parentId values are accepted and kept in their decimal form.
func ParseUpsertNotice(payload string) (model.UpsertNotice, error) {
	var raw struct {
		Table    string          `json:"table"`
		UID      json.RawMessage `json:"uid"`
		ParentID json.RawMessage `json:"parentId"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return model.UpsertNotice{}, fmt.Errorf("%w: %v", ErrMalformedNotice, err)
	}

	uid, err := scalar(raw.UID)
	if err != nil {
		return model.UpsertNotice{}, fmt.Errorf("%w: uid: %v", ErrMalformedNotice, err)
	}
	parent, err := scalar(raw.ParentID)
	if err != nil {
		return model.UpsertNotice{}, fmt.Errorf("%w: parentId: %v", ErrMalformedNotice, err)
	}
	if raw.Table == "" || uid == "" {
		return model.UpsertNotice{}, fmt.Errorf("%w: %q needs table and uid", ErrMalformedNotice, payload)
	}

	return model.UpsertNotice{Table: raw.Table, UID: uid, ParentID: parent}, nil
}

func scalar(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}
