package domain

// IntervalEnd is either open or closed at a node and time. The zero value is open.
type IntervalEnd struct {
	closed bool
	time   int64
	nodeID int64
}

// OpenEnd returns the end of an interval that is still in progress.
func OpenEnd() IntervalEnd {
	return IntervalEnd{}
}

// ClosedEnd returns the end of an interval closed at nodeID and t.
func ClosedEnd(t, nodeID int64) IntervalEnd {
	return IntervalEnd{closed: true, time: t, nodeID: nodeID}
}

// Closed returns the end time and node when the interval is closed.
func (e IntervalEnd) Closed() (t int64, nodeID int64, ok bool) {
	if !e.closed {
		return 0, 0, false
	}
	return e.time, e.nodeID, true
}

// IsOpen reports whether no end has been recorded.
func (e IntervalEnd) IsOpen() bool {
	return !e.closed
}

// Interval is an occupancy of StartNodeID from StartTime until End.
type Interval struct {
	ID          int64
	SequenceID  int64
	StartTime   int64
	StartNodeID int64
	End         IntervalEnd
}

// NewInterval validates and builds an open interval.
func NewInterval(sequenceID, startNodeID, startTime int64) (Interval, error) {
	if sequenceID <= 0 || startNodeID <= 0 {
		return Interval{}, ErrInvalidID
	}
	if startTime < 0 {
		return Interval{}, ErrInvalidTimestamp
	}
	return Interval{
		SequenceID:  sequenceID,
		StartTime:   startTime,
		StartNodeID: startNodeID,
		End:         OpenEnd(),
	}, nil
}

// IsOpen reports whether the interval is ongoing.
func (i Interval) IsOpen() bool {
	return i.End.IsOpen()
}

// Close records the end node and time. Closure is one-way.
func (i *Interval) Close(nodeID, t int64) error {
	if !i.End.IsOpen() {
		return ErrIntervalClosed
	}
	if nodeID <= 0 {
		return ErrInvalidID
	}
	if t < i.StartTime {
		return ErrEndBeforeStart
	}
	i.End = ClosedEnd(t, nodeID)
	return nil
}

// EndTime returns the closing timestamp, if any.
func (i Interval) EndTime() (int64, bool) {
	t, _, ok := i.End.Closed()
	return t, ok
}

// EndNodeID returns the closing node, if any.
func (i Interval) EndNodeID() (int64, bool) {
	_, nodeID, ok := i.End.Closed()
	return nodeID, ok
}

// Duration returns the elapsed milliseconds; open intervals are measured up to now.
func (i Interval) Duration(now int64) int64 {
	end, ok := i.EndTime()
	if !ok {
		end = now
	}
	if end < i.StartTime {
		return 0
	}
	return end - i.StartTime
}

// Overlaps reports whether the interval intersects [from, to). A nil bound is unbounded.
func (i Interval) Overlaps(from, to *int64) bool {
	if to != nil && i.StartTime >= *to {
		return false
	}
	if from != nil {
		if end, ok := i.EndTime(); ok && end < *from {
			return false
		}
	}
	return true
}

// Validate checks the row-level invariants of a stored interval.
func (i Interval) Validate() error {
	if i.SequenceID <= 0 || i.StartNodeID <= 0 {
		return ErrInvalidID
	}
	if i.StartTime < 0 {
		return ErrInvalidTimestamp
	}
	if end, nodeID, ok := i.End.Closed(); ok {
		if nodeID <= 0 {
			return ErrInvalidID
		}
		if end < i.StartTime {
			return ErrEndBeforeStart
		}
	}
	return nil
}
