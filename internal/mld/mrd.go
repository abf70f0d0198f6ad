package mld

import (
	"time"

	"github.com/dennypage/mcast-bridge/internal/wire"
)

// startMRD emits the initial advertisement burst, then settles into the
// steady-state jittered schedule.
func (e *Engine) startMRD(ifs *ifaceState) {
	e.sendMRDAdvertisement(ifs)
	e.armMRDTimer(ifs, wire.MRDInitialCount-1, randomJitter(wire.MRDInitialIntervalS*1000))
}

func (e *Engine) armMRDTimer(ifs *ifaceState, initialLeft int, delay time.Duration) {
	e.loop.AddTimer(int(delay/time.Millisecond), timerKey{kind: timerMRD, ifs: ifs}, func() {
		e.sendMRDAdvertisement(ifs)

		if initialLeft > 1 {
			e.armMRDTimer(ifs, initialLeft-1, randomJitter(wire.MRDInitialIntervalS*1000))
			return
		}
		e.armMRDTimer(ifs, 0, e.steadyStateMRDDelay())
	})
}

func (e *Engine) steadyStateMRDDelay() time.Duration {
	base := wire.MRDInterval*1000 - wire.MRDIntervalJitterMs
	span := 2 * wire.MRDIntervalJitterMs
	return time.Duration(base)*time.Millisecond + randomJitter(span)
}

// onMRDSolicitation cancels the scheduled advertisement and emits one
// immediately, then resumes the normal jittered schedule.
func (e *Engine) onMRDSolicitation(ifs *ifaceState) {
	e.loop.DelTimer(timerKey{kind: timerMRD, ifs: ifs})
	e.sendMRDAdvertisement(ifs)
	e.armMRDTimer(ifs, 0, e.steadyStateMRDDelay())
}
