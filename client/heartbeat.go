package client

import (
	"time"

	"github.com/Mmx233/QLink/protocol"
)

// heartbeat holds the liveness timers of one connection.
type heartbeat struct {
	tick    timer
	pong    timer
	pongSeq uint64 // bumped whenever pong is armed or cancelled
}

func (c *Client) startHeartbeatLocked(cn *conn) {
	if !c.conf.Heartbeat.IsEnabled() {
		return
	}
	c.scheduleTickLocked(cn)
}

func (c *Client) scheduleTickLocked(cn *conn) {
	cn.hb.tick = c.newTimer(timerHeartbeat, c.conf.Heartbeat.Interval, func() {
		c.onHeartbeatTick(cn)
	})
}

func (c *Client) stopHeartbeatLocked(cn *conn) {
	stopTimer(&cn.hb.tick)
	c.cancelPongLocked(cn)
}

// onHeartbeatTick arms the pong timeout before writing the ping, so a write
// stalled on a dead peer still counts against the timeout.
func (c *Client) onHeartbeatTick(cn *conn) {
	c.mu.Lock()
	if c.conn != cn || !cn.ready || cn.hb.tick == nil {
		c.unlock()
		return
	}
	c.armPongLocked(cn)
	c.scheduleTickLocked(cn)
	c.unlock()

	ping := protocol.NewPing(protocol.PingMsg{Timestamp: time.Now().UnixMilli()})
	if err := cn.write(ping); err != nil {
		c.logger.Warn().Err(err).Msg("send ping failed")
	}
}

func (c *Client) armPongLocked(cn *conn) {
	c.cancelPongLocked(cn)
	seq := cn.hb.pongSeq
	cn.hb.pong = c.newTimer(timerPong, c.conf.Heartbeat.Timeout, func() {
		c.onPongTimeout(cn, seq)
	})
}

func (c *Client) cancelPongLocked(cn *conn) {
	cn.hb.pongSeq++
	stopTimer(&cn.hb.pong)
}

func (c *Client) handlePongLocked(cn *conn) {
	c.cancelPongLocked(cn)
}

func (c *Client) onPongTimeout(cn *conn, seq uint64) {
	c.mu.Lock()
	defer c.unlock()

	if c.conn != cn || cn.hb.pongSeq != seq {
		return
	}
	c.logger.Warn().Dur("timeout", c.conf.Heartbeat.Timeout).Msg("no pong received, closing connection")
	c.closedLocked(cn, ErrHeartbeatTimeout)
}
