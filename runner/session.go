package runner

import (
	"context"
	"fmt"
	"time"
)

type sessionState int

const (
	sessionIdle sessionState = iota
	sessionArmed
	sessionRecording
	sessionFinished
)

func (s sessionState) String() string {
	switch s {
	case sessionIdle:
		return "idle"
	case sessionArmed:
		return "armed"
	case sessionRecording:
		return "recording"
	case sessionFinished:
		return "finished"
	default:
		return fmt.Sprintf("sessionState(%d)", int(s))
	}
}

// recordingSession tracks the recording of one device through
// idle, armed, recording and finished. Finished is terminal.
type recordingSession struct {
	name     string
	recorder Recorder
	state    sessionState
}

func newRecordingSession(name string, recorder Recorder) *recordingSession {
	return &recordingSession{name: name, recorder: recorder}
}

func (s *recordingSession) prepare(ctx context.Context) error {
	if s.state != sessionIdle {
		return fmt.Errorf("cannot prepare %s recording: session is %s", s.name, s.state)
	}
	if err := s.recorder.Prepare(ctx); err != nil {
		return fmt.Errorf("failed to prepare %s recording: %w", s.name, err)
	}
	s.state = sessionArmed
	return nil
}

func (s *recordingSession) start(ctx context.Context, timeout time.Duration) error {
	if s.state != sessionArmed {
		return fmt.Errorf("cannot start %s recording: session is %s", s.name, s.state)
	}
	if err := s.recorder.Start(ctx, timeout); err != nil {
		return fmt.Errorf("failed to start %s recording: %w", s.name, err)
	}
	s.state = sessionRecording
	return nil
}

// stop finishes the session. A failed stop still finishes it, the recorder
// is not retried.
func (s *recordingSession) stop(ctx context.Context) error {
	if s.state != sessionRecording {
		return fmt.Errorf("cannot stop %s recording: session is %s", s.name, s.state)
	}
	s.state = sessionFinished
	if err := s.recorder.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop %s recording: %w", s.name, err)
	}
	return nil
}

// secondaryActor is the linked device recording alongside the primary one.
type secondaryActor struct {
	serial  string
	session *recordingSession
}
