package station

import (
	"context"
	"fmt"

	"github.com/allbin/serial-station/internal/recorder"
)

// StartRecording records every line received from now on to path. With an
// empty path the target picker chooses one, but only after the connection
// has been confirmed open.
func (c *Coordinator) StartRecording(ctx context.Context, path string) (recorder.Status, error) {
	if path == "" {
		if err := c.call(ctx, c.requireOpen); err != nil {
			return recorder.Status{}, err
		}
		picked, err := c.picker.PickTarget(ctx)
		if err != nil {
			return recorder.Status{}, fmt.Errorf("choose recording target: %w", err)
		}
		if picked == "" {
			return recorder.Status{}, ErrTargetCancelled
		}
		path = picked
	}

	var st recorder.Status
	err := c.call(ctx, func() error {
		if err := c.requireOpen(); err != nil {
			return err
		}
		var err error
		st, err = c.rec.Start(path)
		return err
	})
	return st, err
}

func (c *Coordinator) PauseRecording(ctx context.Context) (recorder.Status, error) {
	return c.recordingCall(ctx, c.rec.Pause)
}

func (c *Coordinator) ResumeRecording(ctx context.Context) (recorder.Status, error) {
	return c.recordingCall(ctx, c.rec.Resume)
}

// StopRecording ends the recording. Lines still queued are discarded.
func (c *Coordinator) StopRecording(ctx context.Context) (recorder.Status, error) {
	return c.recordingCall(ctx, func() (recorder.Status, error) {
		st, dropped, err := c.rec.Stop()
		if dropped > 0 {
			c.log.Warn().Int("dropped", dropped).Msg("recording stopped with unwritten lines")
		}
		return st, err
	})
}

func (c *Coordinator) RecordingStatus(ctx context.Context) (recorder.Status, error) {
	var st recorder.Status
	err := c.call(ctx, func() error {
		st = c.rec.Status()
		return nil
	})
	return st, err
}

// AppendRecord queues an operator-supplied line directly into the recording.
func (c *Coordinator) AppendRecord(ctx context.Context, line string) error {
	return c.call(ctx, func() error { return c.rec.Append(line) })
}

func (c *Coordinator) recordingCall(ctx context.Context, fn func() (recorder.Status, error)) (recorder.Status, error) {
	var st recorder.Status
	err := c.call(ctx, func() error {
		if err := c.requireOpen(); err != nil {
			return err
		}
		var err error
		st, err = fn()
		return err
	})
	return st, err
}

func (c *Coordinator) requireOpen() error {
	if c.conn == nil || c.conn.state != StateOpen {
		return ErrNotConnected
	}
	return nil
}
