package progress

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerIsMonotonic(t *testing.T) {
	rec := &Recorder{}
	tr := Track(rec)
	for _, p := range []int{0, 10, 5, 10, 40, -3, 120, 90} {
		tr.Progress(p)
	}
	assert.Equal(t, []int{0, 10, 40, 100}, rec.Percents())
}

func TestTrackerSingleTerminalEvent(t *testing.T) {
	rec := &Recorder{}
	tr := Track(rec)
	tr.Progress(30)
	tr.Completed(Summary{"pages": 3})
	tr.Failed(errors.New("late"))
	tr.Completed(nil)
	tr.Progress(99)

	ev := rec.Events()
	assert.Len(t, ev, 3)
	assert.Equal(t, "progress", ev[0].Kind)
	assert.Equal(t, 100, ev[1].Percent, "completion is preceded by 100%")
	assert.Equal(t, "completed", ev[2].Kind)
	assert.Equal(t, 3, ev[2].Summary["pages"])
	assert.True(t, tr.Done())
}

func TestTrackerFailedDoesNotReachHundred(t *testing.T) {
	rec := &Recorder{}
	tr := Track(rec)
	tr.Progress(50)
	tr.Failed(errors.New("boom"))
	assert.Equal(t, []int{50}, rec.Percents())
	assert.Equal(t, 50, tr.Last())
}

func TestTrackReusesTracker(t *testing.T) {
	tr := Track(nil)
	assert.Same(t, tr, Track(tr))
	tr.Progress(10)
	assert.Equal(t, 10, tr.Last())
}

func TestStep(t *testing.T) {
	rec := &Recorder{}
	tr := Track(rec)
	for i := 1; i <= 4; i++ {
		tr.Step(i, 4, 10, 90)
	}
	tr.Step(0, 0, 10, 95)
	assert.Equal(t, []int{30, 50, 70, 90, 95}, rec.Percents())
}

func TestMultiAndFuncs(t *testing.T) {
	var got []int
	var failed error
	rec := &Recorder{}
	m := Multi{rec, Funcs{OnProgress: func(p int) { got = append(got, p) }, OnFailed: func(err error) { failed = err }}}
	m.Progress(5)
	m.Completed(nil)
	m.Failed(errors.New("x"))
	assert.Equal(t, []int{5}, got)
	assert.EqualError(t, failed, "x")
	assert.Len(t, rec.Events(), 3)
}

func TestTrackerConcurrentUse(t *testing.T) {
	rec := &Recorder{}
	tr := Track(rec)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for p := 0; p <= 100; p += 10 {
				tr.Progress(p + i)
			}
		}(i)
	}
	wg.Wait()
	ps := rec.Percents()
	for i := 1; i < len(ps); i++ {
		assert.Greater(t, ps[i], ps[i-1])
	}
}
