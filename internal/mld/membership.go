package mld

import (
	"time"

	"github.com/dennypage/mcast-bridge/internal/group"
	"github.com/dennypage/mcast-bridge/internal/metrics"
)

func (e *Engine) onJoin(ifs *ifaceState, groupAddr [16]byte) {
	entry, full := ifs.groups.FindOrInsert(groupAddr)
	if entry == nil {
		if full {
			e.log.Debug("mld: group table full", "interface", ifs.in.Name)
			e.metrics.AddDropped("mld", ifs.in.Name, metrics.DropTableFull)
		}
		return
	}

	if !entry.Active {
		entry.Active = true
		for _, h := range entry.Subscribers {
			h.ActivateOutbound()
		}
	} else {
		e.loop.DelTimer(timerKey{kind: timerLastMemberQuery, entry: entry, ifs: ifs})
		entry.GroupQueriesRemaining = 0
	}

	timeout := time.Duration(ifs.qrv)*time.Duration(ifs.qqicSec)*time.Second + time.Duration(ifs.respMillis)*time.Millisecond + graceMillis*time.Millisecond
	e.armGroupMembershipTimer(ifs, entry, timeout)
	e.updateGroupMetrics(ifs)
}

func (e *Engine) onLeave(ifs *ifaceState, groupAddr [16]byte) {
	if ifs.state != stateActive {
		return
	}

	entry, _ := ifs.groups.FindOrInsert(groupAddr)
	if entry == nil || !entry.Active {
		return
	}
	if entry.GroupQueriesRemaining > 0 {
		return
	}

	shortTimeout := time.Duration(ifs.qrv)*time.Duration(lastMbrMillis)*time.Millisecond + graceMillis*time.Millisecond
	e.armGroupMembershipTimer(ifs, entry, shortTimeout)

	entry.GroupQueriesRemaining = ifs.qrv
	e.emitLastMemberQuery(ifs, entry)
}

func (e *Engine) emitLastMemberQuery(ifs *ifaceState, entry *group.Entry[[16]byte]) {
	sFlag := entry.GroupQueriesRemaining != ifs.qrv
	e.sendQuery(ifs, entry.Addr, sFlag)
	entry.GroupQueriesRemaining--

	if entry.GroupQueriesRemaining <= 0 {
		return
	}
	spacing := time.Duration(lastMbrMillis) * time.Millisecond
	e.loop.AddTimer(int(spacing/time.Millisecond), timerKey{kind: timerLastMemberQuery, entry: entry, ifs: ifs}, func() {
		e.emitLastMemberQuery(ifs, entry)
	})
}

// armGroupMembershipTimer (re)schedules the group expiry timer.
func (e *Engine) armGroupMembershipTimer(ifs *ifaceState, entry *group.Entry[[16]byte], timeout time.Duration) {
	e.loop.DelTimer(timerKey{kind: timerGroupMembership, entry: entry, ifs: ifs})
	e.loop.AddTimer(int(timeout/time.Millisecond), timerKey{kind: timerGroupMembership, entry: entry, ifs: ifs}, func() {
		e.onGroupExpired(ifs, entry)
	})
}

func (e *Engine) onGroupExpired(ifs *ifaceState, entry *group.Entry[[16]byte]) {
	entry.Active = false
	entry.GroupQueriesRemaining = 0
	e.loop.DelTimer(timerKey{kind: timerLastMemberQuery, entry: entry, ifs: ifs})
	for _, h := range entry.Subscribers {
		h.DeactivateOutbound()
	}
	ifs.groups.Tighten()
	e.updateGroupMetrics(ifs)
}

func (e *Engine) updateGroupMetrics(ifs *ifaceState) {
	if e.metrics == nil {
		return
	}
	active := 0
	for _, en := range ifs.groups.All() {
		if en.Active {
			active++
		}
	}
	e.metrics.GroupsActive.WithLabelValues("mld", ifs.in.Name).Set(float64(active))
	e.metrics.GroupsFixed.WithLabelValues("mld", ifs.in.Name).Set(float64(ifs.groups.FixedCount()))
}
