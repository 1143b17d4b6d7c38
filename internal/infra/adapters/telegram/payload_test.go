//go:build !integration

package telegram

import "testing"

func TestParseStartPayload(t *testing.T) {
	cases := []struct {
		in   string
		want StartPayload
	}{
		{in: "", want: StartPayload{}},
		{in: "c_5", want: StartPayload{ChannelID: 5}},
		{in: "c_5_ref_300", want: StartPayload{ChannelID: 5, ReferrerID: 300}},
		{in: "ref_300", want: StartPayload{ReferrerID: 300}},
		{in: "b_7", want: StartPayload{BundleID: 7}},
		{in: " c_12 ", want: StartPayload{ChannelID: 12}},
		{in: "c_x_ref_300", want: StartPayload{ReferrerID: 300}},
		{in: "c_-5", want: StartPayload{}},
		{in: "c_5_ref_abc", want: StartPayload{ChannelID: 5}},
		{in: "hello", want: StartPayload{}},
	}
	for _, tc := range cases {
		if got := ParseStartPayload(tc.in); got != tc.want {
			t.Errorf("ParseStartPayload(%q): expected %+v, but got: %+v", tc.in, tc.want, got)
		}
	}
	if !ParseStartPayload("hello").IsZero() {
		t.Fatal("expected an unknown payload to be zero")
	}
}
