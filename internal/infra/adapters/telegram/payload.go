package telegram

import (
	"strconv"
	"strings"
)

// StartPayload is the decoded parameter of a t.me/<bot>?start=... deep link:
//
//	c_<channel_id>[_ref_<partner_tg_id>]  open a channel offer
//	b_<bundle_id>                         open a bundle offer
//	ref_<partner_tg_id>                   remember the referrer only
type StartPayload struct {
	ChannelID  int64
	BundleID   int64
	ReferrerID int64
}

func (p StartPayload) IsZero() bool {
	return p.ChannelID == 0 && p.BundleID == 0 && p.ReferrerID == 0
}

// ParseStartPayload decodes s; malformed parts are ignored.
func ParseStartPayload(s string) StartPayload {
	var p StartPayload
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "ref_"); i >= 0 {
		p.ReferrerID = positiveID(s[i+len("ref_"):])
		s = strings.TrimSuffix(s[:i], "_")
	}
	switch {
	case strings.HasPrefix(s, "c_"):
		p.ChannelID = positiveID(s[2:])
	case strings.HasPrefix(s, "b_"):
		p.BundleID = positiveID(s[2:])
	}
	return p
}

func positiveID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}
