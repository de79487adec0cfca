package recorder

import "sync/atomic"

// Stats 记录器与心跳的运行计数，可被状态接口并发读取
type Stats struct {
	committed         atomic.Int64
	dropped           atomic.Int64
	rolledBack        atomic.Int64
	failed            atomic.Int64
	rejected          atomic.Int64
	skippedAttributes atomic.Int64
	writtenAttributes atomic.Int64

	heartbeats        atomic.Int64
	heartbeatFailures atomic.Int64
	reconnects        atomic.Int64
	reconnectFailures atomic.Int64
}

// StatsSnapshot 统计快照
type StatsSnapshot struct {
	Committed         int64 `json:"committed"`
	Dropped           int64 `json:"dropped"`
	RolledBack        int64 `json:"rolled_back"`
	Failed            int64 `json:"failed"`
	Rejected          int64 `json:"rejected"`
	SkippedAttributes int64 `json:"skipped_attributes"`
	WrittenAttributes int64 `json:"written_attributes"`
	Heartbeats        int64 `json:"heartbeats"`
	HeartbeatFailures int64 `json:"heartbeat_failures"`
	Reconnects        int64 `json:"reconnects"`
	ReconnectFailures int64 `json:"reconnect_failures"`
}

// Snapshot 返回当前计数
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Committed:         s.committed.Load(),
		Dropped:           s.dropped.Load(),
		RolledBack:        s.rolledBack.Load(),
		Failed:            s.failed.Load(),
		Rejected:          s.rejected.Load(),
		SkippedAttributes: s.skippedAttributes.Load(),
		WrittenAttributes: s.writtenAttributes.Load(),
		Heartbeats:        s.heartbeats.Load(),
		HeartbeatFailures: s.heartbeatFailures.Load(),
		Reconnects:        s.reconnects.Load(),
		ReconnectFailures: s.reconnectFailures.Load(),
	}
}

func (s *Stats) count(res Result) {
	switch res.Outcome {
	case OutcomeCommitted:
		s.committed.Add(1)
		s.writtenAttributes.Add(int64(res.Written))
	case OutcomeDropped:
		s.dropped.Add(1)
	case OutcomeRolledBack:
		s.rolledBack.Add(1)
	case OutcomeFailed:
		s.failed.Add(1)
	case OutcomeRejected:
		s.rejected.Add(1)
	}
	s.skippedAttributes.Add(int64(len(res.Skipped)))
}
