package view

import (
	"math"
	"time"

	"github.com/lofgren/tideview/mathhelp"
)

// Clock supplies absolute time to go-to animations. The animation
// progresses on elapsed time only, so irregular frame pacing changes
// smoothness but never the arrival point.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// goToContext holds one running fly-to animation.
type goToContext struct {
	fromLat, fromLon float64
	toLat, toLon     float64
	started          time.Time
	duration         time.Duration
}

func (g *goToContext) progress(now time.Time) float64 {
	return mathhelp.Clamp01(now.Sub(g.started).Seconds() / g.duration.Seconds())
}

// easeInOutCirc is a circular ease-in-out curve: slow start, fast
// middle, slow arrival.
func easeInOutCirc(f float64) float64 {
	f *= 2
	if f < 1 {
		return -(math.Sqrt(1-f*f) - 1) / 2
	}
	f -= 2
	return (math.Sqrt(1-f*f) + 1) / 2
}

// GoTo animates the view center to the coordinate with the default
// duration, 500ms scaled by half the current zoom level.
func (v *View) GoTo(lat, lon float64) {
	v.GoToWithDuration(lat, lon, time.Duration(500*v.zoom/2)*time.Millisecond)
}

// GoToWithDuration animates the view center to the coordinate over the
// given duration. A zero duration recenters immediately. Any running
// animation is stopped first.
func (v *View) GoToWithDuration(lat, lon float64, duration time.Duration) {
	v.StopGoTo()
	if duration <= 0 {
		_ = v.CenterOn(lat, lon)
		return
	}
	v.goTo = &goToContext{
		fromLat:  v.lat,
		fromLon:  v.lon,
		toLat:    lat,
		toLon:    lon,
		started:  v.clock.Now(),
		duration: duration,
	}
}

// StopGoTo cancels a running animation, leaving the view wherever the
// last frame put it. No-op when idle.
func (v *View) StopGoTo() {
	if v.goTo == nil {
		return
	}
	v.goTo = nil
	if v.hooks.OnAnimationEnded != nil {
		v.hooks.OnAnimationEnded(false)
	}
}

// Animating reports whether a go-to animation is running.
func (v *View) Animating() bool { return v.goTo != nil }

// Frame advances a running go-to animation to the clock's current time.
// Hosts call it from their frame loop; when the elapsed time reaches
// the duration the view lands exactly on the destination.
func (v *View) Frame() {
	g := v.goTo
	if g == nil {
		return
	}
	now := v.clock.Now()
	if now.Sub(g.started) >= g.duration {
		v.goTo = nil
		_ = v.CenterOn(g.toLat, g.toLon)
		if v.hooks.OnAnimationEnded != nil {
			v.hooks.OnAnimationEnded(true)
		}
		return
	}
	f := easeInOutCirc(g.progress(now))
	_ = v.CenterOn(
		mathhelp.Lerp(g.fromLat, g.toLat, f),
		mathhelp.Lerp(g.fromLon, g.toLon, f),
	)
}
