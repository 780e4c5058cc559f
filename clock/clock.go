package clock

// Clock is the simulated time source. Time only moves forward and only when
// the driver advances it; the unit is simulated milliseconds.
type Clock struct {
	now   float64
	speed float64
}

// New creates a clock at time zero with the given speed multiplier.
// A non-positive speed falls back to 1.
func New(speed float64) *Clock {
	if speed <= 0 {
		speed = 1
	}
	return &Clock{speed: speed}
}

// Now returns the current simulated time.
func (c *Clock) Now() float64 {
	if c == nil {
		return 0
	}
	return c.now
}

// Speed returns the clock speed multiplier.
func (c *Clock) Speed() float64 {
	if c == nil {
		return 1
	}
	return c.speed
}

// Advance moves time forward by delta scaled by the speed multiplier and
// returns the new time. Negative deltas are ignored.
func (c *Clock) Advance(delta float64) float64 {
	if c == nil {
		return 0
	}
	if delta > 0 {
		c.now += delta * c.speed
	}
	return c.now
}

// Target returns the time Advance(delta) would reach, without moving.
func (c *Clock) Target(delta float64) float64 {
	if c == nil {
		return 0
	}
	if delta <= 0 {
		return c.now
	}
	return c.now + delta*c.speed
}

// AdvanceTo moves time forward to t. Times in the past are ignored.
func (c *Clock) AdvanceTo(t float64) float64 {
	if c == nil {
		return 0
	}
	if t > c.now {
		c.now = t
	}
	return c.now
}

// Reset rewinds the clock to zero.
func (c *Clock) Reset() {
	if c == nil {
		return
	}
	c.now = 0
}
