package progress

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDashboardSink_SubscribeAndPublish(t *testing.T) {
	d := NewDashboardSink(nil)
	ch, unsubscribe := d.Subscribe()
	defer unsubscribe()

	d.Publish(Event{Kind: KindStats, Message: "stats tick"})

	evt := <-ch
	require.Equal(t, KindStats, evt.Kind)
	require.Equal(t, 1, d.SubscriberCount())
}

func TestDashboardSink_DropsSlowSubscriber(t *testing.T) {
	d := NewDashboardSink(nil)
	_, unsubscribe := d.Subscribe()
	defer unsubscribe()

	for i := 0; i < dashboardBufferSize+10; i++ {
		d.Publish(Event{Kind: KindStats, Message: "tick"})
	}

	require.Equal(t, 0, d.SubscriberCount(), "slow subscriber should have been disconnected")
}

func TestDashboardSink_UnsubscribeClosesChannel(t *testing.T) {
	d := NewDashboardSink(nil)
	ch, unsubscribe := d.Subscribe()
	unsubscribe()

	_, ok := <-ch
	require.False(t, ok)
}
