package main

import (
	"log/slog"

	"github.com/jroosing/poolnetd/internal/connpool"
)

// echoHandler returns a connpool.Handler that echoes every byte it
// receives back to the same slot, demonstrating every signal a pool can
// deliver without smuggling in any higher-level protocol.
func echoHandler(logger *slog.Logger, poolName string) connpool.Handler {
	return func(p *connpool.Pool, idx int, sig connpool.Signal) connpool.Verdict {
		switch sig {
		case connpool.SigCreated:
			logger.Debug("slot created", "pool", poolName, "idx", idx)

		case connpool.SigAccepted, connpool.SigConnected:
			logger.Debug("connection up", "pool", poolName, "idx", idx, "peer", p.Peer(idx).String())

		case connpool.SigDataIn:
			echoPending(p, idx)

		case connpool.SigDataLeft:
			echoPending(p, idx)

		case connpool.SigCanSend:
			// Queued output already drains via Send's internal buffering;
			// nothing further to push from here.

		case connpool.SigClosing:
			logger.Debug("connection closing", "pool", poolName, "idx", idx)

		case connpool.SigTimedOut:
			logger.Debug("connection timed out", "pool", poolName, "idx", idx)

		case connpool.SigMovedTo:
			logger.Debug("connection moved in", "pool", poolName, "idx", idx)

		case connpool.SigMovedFrom:
			logger.Debug("connection moved out", "pool", poolName, "idx", idx)

		case connpool.SigDestroying:
			logger.Debug("slot destroyed", "pool", poolName, "idx", idx)
		}
		return connpool.VerdictOK
	}
}

// echoPending sends back whatever is currently buffered for idx and marks
// it consumed.
func echoPending(p *connpool.Pool, idx int) {
	b := p.Recv(idx)
	if len(b) == 0 {
		return
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	_ = p.Send(idx, cp)
	p.Consume(idx, len(b))
}
