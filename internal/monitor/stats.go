package monitor

import "sync/atomic"

// Poll and sync outcome labels.
const (
	ResultOK              = "ok"
	ResultNetworkError    = "network_error"
	ResultProtocolError   = "protocol_error"
	ResultMissingKeywords = "missing_keywords"
	ResultError           = "error"

	ResultUnchanged   = "unchanged"
	ResultRateLimited = "rate_limited"
)

// Stats counts pipeline outcomes. The zero value is ready for use.
type Stats struct {
	pollOK, pollNetwork, pollProtocol, pollMissing, pollOther atomic.Uint64
	syncOK, syncUnchanged, syncLimited, syncFailed            atomic.Uint64
}

func (s *Stats) notePoll(result string) {
	if s == nil {
		return
	}
	switch result {
	case ResultOK:
		s.pollOK.Add(1)
	case ResultNetworkError:
		s.pollNetwork.Add(1)
	case ResultProtocolError:
		s.pollProtocol.Add(1)
	case ResultMissingKeywords:
		s.pollMissing.Add(1)
	default:
		s.pollOther.Add(1)
	}
}

func (s *Stats) noteSync(result string) {
	if s == nil {
		return
	}
	switch result {
	case ResultOK:
		s.syncOK.Add(1)
	case ResultUnchanged:
		s.syncUnchanged.Add(1)
	case ResultRateLimited:
		s.syncLimited.Add(1)
	default:
		s.syncFailed.Add(1)
	}
}

// Polls returns poll counts keyed by result label.
func (s *Stats) Polls() map[string]uint64 {
	return map[string]uint64{
		ResultOK:              s.pollOK.Load(),
		ResultNetworkError:    s.pollNetwork.Load(),
		ResultProtocolError:   s.pollProtocol.Load(),
		ResultMissingKeywords: s.pollMissing.Load(),
		ResultError:           s.pollOther.Load(),
	}
}

// Syncs returns sync counts keyed by result label.
func (s *Stats) Syncs() map[string]uint64 {
	return map[string]uint64{
		ResultOK:          s.syncOK.Load(),
		ResultUnchanged:   s.syncUnchanged.Load(),
		ResultRateLimited: s.syncLimited.Load(),
		ResultError:       s.syncFailed.Load(),
	}
}
