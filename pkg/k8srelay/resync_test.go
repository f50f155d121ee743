package k8srelay

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeResyncNotifier struct {
	calls     int
	failNext  error
}

func (f *fakeResyncNotifier) SendLastMessage() error {
	f.calls++
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	return nil
}

func TestResyncChannel_TriggerNotifiesAndCancels(t *testing.T) {
	notifier := &fakeResyncNotifier{}
	_, cancel := context.WithCancel(context.Background())
	canceled := false
	rc := NewResyncChannel(notifier, func() { canceled = true; cancel() }, nil, nil)

	rc.Trigger()

	assert.Equal(t, 1, notifier.calls)
	assert.True(t, canceled)
	assert.True(t, rc.Triggered())
}

func TestResyncChannel_TriggerIsIdempotent(t *testing.T) {
	notifier := &fakeResyncNotifier{}
	_, cancel := context.WithCancel(context.Background())
	rc := NewResyncChannel(notifier, cancel, nil, nil)

	rc.Trigger()
	rc.Trigger()
	rc.Trigger()

	assert.Equal(t, 1, notifier.calls, "a second Trigger must be a no-op")
}

func TestResyncChannel_CancelsEvenIfNotifyFails(t *testing.T) {
	notifier := &fakeResyncNotifier{failNext: errors.New("stream broken")}
	_, cancel := context.WithCancel(context.Background())
	canceled := false
	rc := NewResyncChannel(notifier, func() { canceled = true; cancel() }, nil, nil)

	rc.Trigger()

	assert.True(t, canceled, "cancellation must proceed even when notifying the peer fails")
}
