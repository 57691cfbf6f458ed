package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stake-plus/guildgov/src/governance/govtest"
	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	kinds  []string
	fields []map[string]interface{}
	err    error
}

func (r *recordingSink) Publish(_ context.Context, kind, _ string, fields map[string]interface{}) error {
	r.kinds = append(r.kinds, kind)
	r.fields = append(r.fields, fields)
	return r.err
}

func TestAnnounceFansOut(t *testing.T) {
	n := &govtest.Notifier{}
	sink := &recordingSink{}
	a := &Announcer{Notifier: n, Events: sink}

	a.Announce(context.Background(), "g1", AdminAppointed, "hello", map[string]interface{}{"user": "u1"})

	assert.Equal(t, []string{"g1|hello"}, n.Messages)
	assert.Equal(t, []string{AdminAppointed}, sink.kinds)
	assert.Equal(t, "u1", sink.fields[0]["user"])
	assert.Equal(t, "hello", sink.fields[0]["text"])
}

func TestAnnounceSwallowsFailures(t *testing.T) {
	n := &govtest.Notifier{FailWith: errors.New("429 too many requests")}
	sink := &recordingSink{err: errors.New("redis down")}
	a := &Announcer{Notifier: n, Events: sink}

	assert.NotPanics(t, func() {
		a.Announce(context.Background(), "g1", AdminRemoved, "bye", nil)
	})
	assert.Len(t, sink.kinds, 1)

	var nilAnnouncer *Announcer
	assert.NotPanics(t, func() {
		nilAnnouncer.Announce(context.Background(), "g1", AdminRemoved, "bye", nil)
	})
}
