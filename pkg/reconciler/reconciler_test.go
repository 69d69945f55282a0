package reconciler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborworks/flotilla/pkg/captain"
	"github.com/harborworks/flotilla/pkg/types"
)

type nullDialer struct {
	cancels atomic.Int64
}

func (d *nullDialer) Launch(context.Context, types.Sailor, types.LaunchRequest) error {
	return nil
}

func (d *nullDialer) Cancel(context.Context, types.Sailor, string) error {
	d.cancels.Add(1)
	return nil
}

func newTestCaptain(t *testing.T, cfg captain.Config, dialer captain.SailorDialer) *captain.Captain {
	t.Helper()
	cfg.DataDir = t.TempDir()
	cpt, err := captain.NewCaptain(cfg, dialer)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cpt.Shutdown() })
	return cpt
}

func TestReconcilerPurgesTerminalChores(t *testing.T) {
	cfg := captain.DefaultConfig()
	cfg.CleanupTTL = 0 // purge terminal chores on the very next cycle
	cpt := newTestCaptain(t, cfg, &nullDialer{})

	owner := types.FlexInt(1000)
	choreID, err := cpt.SubmitChore(context.Background(), types.SubmitChoreRequest{Script: "/x.sh", Owner: &owner})
	require.NoError(t, err)

	// no crew registered, so the chore is still pending and the cancel
	// goes terminal immediately
	require.NoError(t, cpt.CancelChore(context.Background(), choreID, ""))
	require.Len(t, cpt.Consult("", true), 1)

	r := NewReconciler(cpt)
	r.interval = 20 * time.Millisecond
	r.Start()
	defer r.Stop()

	assert.Eventually(t, func() bool {
		return len(cpt.Consult("", true)) == 0
	}, 2*time.Second, 10*time.Millisecond, "loop must purge the canceled chore")
}

func TestReconcilerEnforcesSailorMaxTime(t *testing.T) {
	dialer := &nullDialer{}
	cpt := newTestCaptain(t, captain.DefaultConfig(), dialer)

	require.NoError(t, cpt.Prereg(types.PreregRequest{Name: "alpha", IP: "127.0.0.1", MaxTime: "00-00:00:01"}))
	require.NoError(t, cpt.Register(context.Background(), types.RegisterRequest{Name: "alpha", IP: "127.0.0.1", CPUs: 4}))

	owner := types.FlexInt(1000)
	choreID, err := cpt.SubmitChore(context.Background(), types.SubmitChoreRequest{Script: "/x.sh", Owner: &owner})
	require.NoError(t, err)

	chores := cpt.Consult("", true)
	require.Len(t, chores, 1)
	require.Equal(t, types.ChoreStatusAssigned, chores[0].Status)

	r := NewReconciler(cpt)
	r.interval = 100 * time.Millisecond
	r.Start()
	defer r.Stop()

	// the 1 s max_time expires, then a cycle marks the chore and POSTs
	// the cancel to the sailor
	assert.Eventually(t, func() bool {
		for _, chore := range cpt.Consult("", true) {
			if chore.ChoreID == choreID && chore.Status == types.ChoreStatusCancelRequested {
				return chore.CancelSource == types.CancelSourceSailorMaxTime
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond, "loop must mark the over-limit chore")
	assert.GreaterOrEqual(t, dialer.cancels.Load(), int64(1))
}

func TestReconcilerStopTerminatesLoop(t *testing.T) {
	cpt := newTestCaptain(t, captain.DefaultConfig(), &nullDialer{})

	r := NewReconciler(cpt)
	r.interval = 10 * time.Millisecond
	r.Start()

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
