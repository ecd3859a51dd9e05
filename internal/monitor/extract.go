package monitor

import (
	"strconv"
	"strings"
)

const queueTokenPrefix = "lqs"

// Extract turns a raw response into a Snapshot. It is pure: Source and
// Observed are left for the caller to stamp.
//
// Tokens of the comma separated blob are visited in order and the last match
// wins per field:
//   - "lqs<N>" sets the queue; an unparsable N clears it.
//   - any token containing ':' is the server clock, taken verbatim.
func Extract(raw RawStatus) (Snapshot, error) {
	if raw.Keywords == nil {
		return Snapshot{}, ErrMissingKeywords
	}

	snap := Snapshot{
		Players:    raw.Players,
		MaxPlayers: raw.MaxPlayers,
		Name:       raw.Name,
		Map:        raw.Map,
	}
	if *raw.Keywords == "" {
		return snap, nil
	}

	for _, tok := range strings.Split(*raw.Keywords, ",") {
		if rest, ok := strings.CutPrefix(tok, queueTokenPrefix); ok {
			snap.PlayersInQueue = parseQueue(rest)
			continue
		}
		if strings.Contains(tok, ":") {
			v := tok
			snap.ServerTime = &v
		}
	}
	return snap, nil
}

func parseQueue(s string) *uint32 {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return nil
	}
	v := uint32(n)
	return &v
}
