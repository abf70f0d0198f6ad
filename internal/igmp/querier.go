package igmp

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
	ifs.querierAddr = [4]byte{}
	e.loop.DelTimer(timerKey{kind: timerOtherQuerierPresent, ifs: ifs})
	e.setQuerierMetric(ifs, true)

	ifs.generalQueriesLeft = ifs.qrv
	e.emitGeneralQuery(ifs)
}

func (e *Engine) emitGeneralQuery(ifs *ifaceState) {
	e.sendQuery(ifs, [4]byte{}, false)
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
// from src.
func (e *Engine) onQueryObserved(ifs *ifaceState, src [4]byte, decoded wire.IGMPDecoded) {
	if src != ifs.querierAddr {
		switch {
		case ifs.state == stateActive && (lessThan(src, ifs.in.IPv4AddrBytes()) || ifs.mode == config.QuerierDefer):
			e.yieldTo(ifs, src)
		case ifs.state == stateActive:
			// Stay active; a higher-address querier is ignored.
			return
		case lessThan(src, ifs.querierAddr) || ifs.querierAddr == [4]byte{}:
			ifs.querierAddr = src
		}
	}

	qrv := int(decoded.QRV)
	qqic := queryIntervalSec
	resp := maxRespTenths
	if qrv == 0 {
		qrv = defaultRobustness
	} else {
		qqic = decodeQQIC(decoded.QQIC)
		resp = decodeRespCode(decoded.MaxRespCode)
	}
	ifs.qrv = qrv
	ifs.qqicSec = qqic
	ifs.respTenths = resp

	otherQuerierTimeout := time.Duration(ifs.qrv)*time.Duration(ifs.qqicSec)*time.Second + time.Duration(ifs.respTenths)*100*time.Millisecond/2
	e.loop.DelTimer(timerKey{kind: timerOtherQuerierPresent, ifs: ifs})
	e.loop.AddTimer(int(otherQuerierTimeout/time.Millisecond), timerKey{kind: timerOtherQuerierPresent, ifs: ifs}, func() {
		e.onOtherQuerierTimeout(ifs)
	})

	if !decoded.IsGeneralQuery && !decoded.SFlag {
		if entry, _ := ifs.groups.FindOrInsert(decoded.Group); entry != nil && entry.Active {
			e.armGroupMembershipTimer(ifs, entry, time.Duration(ifs.qrv)*time.Duration(ifs.respTenths)*100*time.Millisecond+graceMillis*time.Millisecond)
		}
	}
}

func (e *Engine) yieldTo(ifs *ifaceState, src [4]byte) {
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
	ifs.querierAddr = [4]byte{}
}

func (e *Engine) setQuerierMetric(ifs *ifaceState, active bool) {
	if e.metrics == nil {
		return
	}
	v := 0.0
	if active {
		v = 1.0
	}
	e.metrics.QuerierActive.WithLabelValues("igmp", ifs.in.Name).Set(v)
}

func lessThan(a, b [4]byte) bool {
	for i := 0; i < 4; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// decodeQQIC interprets an IGMPv3 QQIC field (8-bit time code, seconds).
func decodeQQIC(code uint8) int {
	return int(wire.DecodeTimecode8(code))
}

// decodeRespCode interprets an IGMPv3 max response code (8-bit time
// code, tenths of a second).
func decodeRespCode(code uint8) int {
	return int(wire.DecodeTimecode8(code))
}
