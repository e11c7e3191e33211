package metrics

import (
	"context"

	"github.com/kilianp07/kioskpower/core/notify"
)

// NoticeCounter counts operator notices.
type NoticeCounter interface {
	RecordNotice(severity, source string)
}

// StartNoticeCollector subscribes to the bus and counts every notice. It
// stops when the context is canceled or the bus is closed.
func StartNoticeCollector(ctx context.Context, bus *notify.Bus, sink NoticeCounter) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-sub:
				if !ok {
					return
				}
				sink.RecordNotice(string(n.Severity), n.Source)
			}
		}
	}()
}
