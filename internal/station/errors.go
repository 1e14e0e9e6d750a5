package station

import "errors"

var (
	ErrNotConnected     = errors.New("port is not open")
	ErrNoPort           = errors.New("no port selected")
	ErrOpenFailed       = errors.New("open failed")
	ErrShutdownConflict = errors.New("port is still open; disconnect before shutting down")
	ErrStopped          = errors.New("station stopped")
	ErrTargetCancelled  = errors.New("no recording target chosen")
)
