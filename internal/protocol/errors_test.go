package protocol

import (
	"fmt"
	"testing"

	"asteroidworks.ai/internal/sim/board"
)

func TestCodeForBoardErrors(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("%w: C9", board.ErrNotFound), ErrNotFound},
		{fmt.Errorf("%w: C2 is bidding", board.ErrNotAwaiting), ErrNotAwaiting},
		{fmt.Errorf("disk full"), ErrInternal},
	}
	for _, tc := range cases {
		got := CodeFor(tc.err)
		if got != tc.want {
			t.Fatalf("CodeFor(%v) = %q want %q", tc.err, got, tc.want)
		}
		if !IsKnownCode(got) {
			t.Fatalf("CodeFor produced unknown code %q", got)
		}
	}
	for _, c := range []string{ErrProtoBadRequest, ErrBiddingClosed, ErrBadRequest, ErrNoPermission, ErrConflict} {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_RATE_LIMIT") {
		t.Fatalf("rate limiting is not part of this protocol")
	}
}
