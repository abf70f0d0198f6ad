package mld

import (
	"time"

	"github.com/dennypage/mcast-bridge/internal/config"
	"github.com/dennypage/mcast-bridge/internal/wire"
)

// startQuerier puts ifs into its initial querier state per its
// configured mode.
func (e *Engine) startQuerier(ifs *ifaceState) {
	switch ifs.mode {
	case config.QuerierNever:
		ifs.state = statePassive

	case config.QuerierQuick:
		e.becomeActive(ifs)

	case config.QuerierDelay, config.QuerierDefer:
		ifs.state = statePassive
		e.loop.AddTimer(int(delayedActivation/time.Millisecond), timerKey{kind: timerOtherQuerierPresent, ifs: ifs}, func() {
			e.becomeActive(ifs)
		})
	}
}

// becomeActive transitions ifs to Active and emits the startup burst of
// general queries, spaced query_interval/4, then keeps sending one
// general query every query interval while it stays Active.
func (e *Engine) becomeActive(ifs *ifaceState) {
	ifs.state = stateActive
	ifs.querierAddr = [16]byte{}
	e.loop.DelTimer(timerKey{kind: timerOtherQuerierPresent, ifs: ifs})
	e.setQuerierMetric(ifs, true)

	ifs.generalQueriesLeft = ifs.qrv
	e.emitGeneralQuery(ifs)
}

func (e *Engine) emitGeneralQuery(ifs *ifaceState) {
	e.sendQuery(ifs, [16]byte{}, false)
	ifs.generalQueriesLeft--
	spacing := queryIntervalSec * time.Second / 4
	if ifs.generalQueriesLeft <= 0 {
		ifs.generalQueriesLeft = 0
		spacing = time.Duration(ifs.qqicSec) * time.Second
	}
	e.loop.AddTimer(int(spacing/time.Millisecond), timerKey{kind: timerGeneralQuery, ifs: ifs}, func() {
		e.emitGeneralQuery(ifs)
	})
}

// onQueryObserved runs the querier election rules against a query seen
// from src. MLDv1 queries carry no QRV or QQIC fields, so a v1 query
// resets the current parameters to their protocol defaults.
func (e *Engine) onQueryObserved(ifs *ifaceState, src [16]byte, decoded wire.MLDDecoded) {
	if src != ifs.querierAddr {
		switch {
		case ifs.state == stateActive && (lessThan(src, ifs.in.IPv6AddrBytes()) || ifs.mode == config.QuerierDefer):
			e.yieldTo(ifs, src)
		case ifs.state == stateActive:
			// Stay active; a higher-address querier is ignored.
			return
		case lessThan(src, ifs.querierAddr) || ifs.querierAddr == [16]byte{}:
			ifs.querierAddr = src
		}
	}

	if decoded.IsV2Query {
		qrv := int(decoded.QRV)
		if qrv == 0 {
			qrv = defaultRobustness
		}
		ifs.qrv = qrv
		ifs.qqicSec = decodeQQIC(decoded.QQIC)
		ifs.respMillis = decodeRespCode(decoded.MaxRespCode)
	} else {
		ifs.qrv = defaultRobustness
		ifs.qqicSec = queryIntervalSec
		ifs.respMillis = maxRespMillis
	}

	otherQuerierTimeout := time.Duration(ifs.qrv)*time.Duration(ifs.qqicSec)*time.Second + time.Duration(ifs.respMillis)*time.Millisecond/2
	e.loop.DelTimer(timerKey{kind: timerOtherQuerierPresent, ifs: ifs})
	e.loop.AddTimer(int(otherQuerierTimeout/time.Millisecond), timerKey{kind: timerOtherQuerierPresent, ifs: ifs}, func() {
		e.onOtherQuerierTimeout(ifs)
	})

	if !decoded.IsGeneralQuery && !decoded.SFlag {
		if entry, _ := ifs.groups.FindOrInsert(decoded.Group); entry != nil && entry.Active {
			e.armGroupMembershipTimer(ifs, entry, time.Duration(ifs.qrv)*time.Duration(ifs.respMillis)*time.Millisecond+graceMillis*time.Millisecond)
		}
	}
}

func (e *Engine) yieldTo(ifs *ifaceState, src [16]byte) {
	e.loop.DelTimer(timerKey{kind: timerGeneralQuery, ifs: ifs})
	ifs.state = statePassive
	ifs.querierAddr = src
	e.setQuerierMetric(ifs, false)
}

func (e *Engine) onOtherQuerierTimeout(ifs *ifaceState) {
	if ifs.mode != config.QuerierNever {
		e.becomeActive(ifs)
		return
	}
	ifs.querierAddr = [16]byte{}
}

func (e *Engine) setQuerierMetric(ifs *ifaceState, active bool) {
	if e.metrics == nil {
		return
	}
	v := 0.0
	if active {
		v = 1.0
	}
	e.metrics.QuerierActive.WithLabelValues("mld", ifs.in.Name).Set(v)
}

func lessThan(a, b [16]byte) bool {
	for i := 0; i < 16; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// decodeQQIC interprets an MLDv2 QQIC field (8-bit time code, seconds).
func decodeQQIC(code uint8) int {
	return int(wire.DecodeTimecode8(code))
}

// decodeRespCode interprets an MLDv2 max response code (16-bit time
// code, milliseconds).
func decodeRespCode(code uint16) int {
	return int(wire.DecodeTimecode16(code))
}
