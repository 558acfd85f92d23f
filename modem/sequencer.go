package modem

import (
	"fmt"
	"time"

	"i4.energy/across/simmqtt/at"
)

type seqResult int

const (
	seqPending seqResult = iota
	seqSuccess
	seqFailed
)

// progress is the position of one sequencer: the step index, the retry
// counter of the current step and the earliest time the step may run again.
type progress struct {
	step    int
	retries int
	next    time.Time
	// waiting is set once a TCP step's command was sent; next is then the
	// step deadline.
	waiting bool
}

func (p *progress) due(now time.Time) bool {
	return !now.Before(p.next)
}

// advance moves to the next step, allowed to run after delay.
func (p *progress) advance(now time.Time, delay time.Duration) {
	p.step++
	p.retries = 0
	p.waiting = false
	p.next = now.Add(delay)
}

func (p *progress) reset() {
	*p = progress{}
}

// Reset sequence steps.
const (
	resetAssert = iota
	resetRelease
	resetAutobaud
	resetEchoOff
	resetFlush
	resetWaitReady
	resetQueryAttach
	resetCheckAttach
	resetQueryClock
	resetFinish
)

// stepReset runs at most one step of the reset-and-attach sequence.
func (m *Modem) stepReset(now time.Time) seqResult {
	p := &m.resetSeq
	if !p.due(now) {
		return seqPending
	}
	cfg := &m.config

	switch p.step {
	case resetAssert:
		m.setResetLevel(false)
		p.advance(now, cfg.resetHold)

	case resetRelease:
		m.setResetLevel(true)
		p.advance(now, cfg.resetSettle)

	case resetAutobaud:
		if err := m.uart.Command(at.CmdAt); err != nil {
			m.logger.Warn("Reset sequence write failed", "error", err)
			return m.failReset("autobaud")
		}
		p.advance(now, cfg.commandGap)

	case resetEchoOff:
		m.flags.clear(flagOK | flagError)
		if err := m.uart.Command(at.CmdEchoOff); err != nil {
			m.logger.Warn("Reset sequence write failed", "error", err)
			return m.failReset("echo off")
		}
		p.advance(now, cfg.commandGap)

	case resetFlush:
		m.rx.Flush()
		p.advance(now, 0)

	case resetWaitReady:
		if m.flags.take(flagSMSReady) {
			m.logger.Debug("Modem ready")
			p.advance(now, 0)
			break
		}
		p.retries++
		if p.retries >= cfg.readyRetries {
			return m.failReset(fmt.Sprintf("no %q after %d polls", at.UrcSMSReady, p.retries))
		}
		p.next = now.Add(cfg.readyInterval)

	case resetQueryAttach:
		m.flags.clear(flagAttached)
		if err := m.uart.Command(at.CmdAttachStatus); err != nil {
			m.logger.Warn("Reset sequence write failed", "error", err)
			return m.failReset("attach query")
		}
		p.step = resetCheckAttach
		p.next = now.Add(cfg.attachInterval)

	case resetCheckAttach:
		if m.flags.take(flagAttached) {
			m.logger.Debug("Network attached", "queries", p.retries+1)
			p.advance(now, 0)
			break
		}
		p.retries++
		if p.retries >= cfg.attachRetries {
			return m.failReset(fmt.Sprintf("not attached after %d queries", p.retries))
		}
		p.step = resetQueryAttach
		p.next = now

	case resetQueryClock:
		// Best effort: the reply is captured by the dispatcher if it arrives.
		if err := m.uart.Command(at.CmdClock); err != nil {
			m.logger.Debug("Clock query failed", "error", err)
		}
		p.advance(now, cfg.clockWait)

	case resetFinish:
		m.rx.Flush()
		m.flags.clear(flagsAT)
		p.reset()
		return seqSuccess
	}
	return seqPending
}

func (m *Modem) failReset(reason string) seqResult {
	m.logger.Warn("Reset sequence failed", "step", m.resetSeq.step, "reason", reason)
	m.resetSeq.reset()
	return seqFailed
}

func (m *Modem) setResetLevel(high bool) {
	if m.resetLine == nil {
		m.logger.Debug("No reset line, skipping toggle", "high", high)
		return
	}
	if err := m.resetLine.SetResetLevel(high); err != nil {
		m.logger.Warn("Reset line toggle failed", "high", high, "error", err)
	}
}

// tcpStep is one command of the TCP connect sequence and the latch that
// completes it.
type tcpStep struct {
	name    string
	command func(p *tcpParams) string
	await   flags
	timeout func(t *TCPTimeouts) time.Duration
}

// tcpParams is the parameter block owned by the TCP sequencer.
type tcpParams struct {
	apn  string
	host string
	port uint16
}

func fixed(cmd string) func(*tcpParams) string {
	return func(*tcpParams) string { return cmd }
}

var tcpSteps = []tcpStep{
	{
		name:    "shut",
		command: fixed(at.CmdShut),
		await:   flagShutOK,
		timeout: func(t *TCPTimeouts) time.Duration { return t.Shut },
	},
	{
		name:    "transparent mode",
		command: fixed(at.CmdTransparent),
		await:   flagOK,
		timeout: func(t *TCPTimeouts) time.Duration { return t.Mode },
	},
	{
		name:    "apn",
		command: func(p *tcpParams) string { return fmt.Sprintf(at.FmtSetAPN, p.apn) },
		await:   flagOK,
		timeout: func(t *TCPTimeouts) time.Duration { return t.APN },
	},
	{
		name:    "bearer",
		command: fixed(at.CmdBearerUp),
		await:   flagOK,
		timeout: func(t *TCPTimeouts) time.Duration { return t.Bearer },
	},
	{
		name:    "local ip",
		command: fixed(at.CmdLocalIP),
		await:   flagIP,
		timeout: func(t *TCPTimeouts) time.Duration { return t.IP },
	},
	{
		name:    "start",
		command: func(p *tcpParams) string { return fmt.Sprintf(at.FmtStartTCP, p.host, p.port) },
		await:   flagOK,
		timeout: func(t *TCPTimeouts) time.Duration { return t.Start },
	},
	{
		// The socket-open marker follows the OK of AT+CIPSTART unprompted.
		name:    "connect",
		await:   flagConnect,
		timeout: func(t *TCPTimeouts) time.Duration { return t.Connect },
	},
}

// stepTCP runs the TCP connect sequence. Each step sends its command once
// and then waits for its latch until the step deadline; an ERROR or CONNECT
// FAIL line fails the step at once. There are no per-step retries.
func (m *Modem) stepTCP(now time.Time) seqResult {
	p := &m.tcpSeq
	for p.step < len(tcpSteps) {
		step := tcpSteps[p.step]

		if !p.waiting {
			if step.command != nil {
				m.flags.clear(step.await | flagError | flagConnectFail)
				cmd := step.command(&m.tcp)
				m.logger.Debug("TCP connect step", "step", step.name, "command", cmd)
				if err := m.uart.Command(cmd); err != nil {
					return m.failTCP(step.name, err.Error())
				}
			}
			p.waiting = true
			p.next = now.Add(step.timeout(&m.config.tcp))
			return seqPending
		}

		if m.flags.take(step.await) {
			p.advance(now, 0)
			continue
		}
		if m.flags.take(flagError | flagConnectFail) {
			return m.failTCP(step.name, "modem reported an error")
		}
		if p.due(now) {
			return m.failTCP(step.name, "timeout")
		}
		return seqPending
	}

	m.rx.Flush()
	m.flags.clear(flagsAT)
	p.reset()
	return seqSuccess
}

func (m *Modem) failTCP(step, reason string) seqResult {
	m.logger.Warn("TCP connect failed", "step", step, "reason", reason)
	m.tcpSeq.reset()
	m.flags.clear(flagsAT)
	return seqFailed
}
