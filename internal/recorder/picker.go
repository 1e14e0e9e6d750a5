package recorder

import (
	"context"
	"fmt"
	"path/filepath"
	"time"
)

// TargetPicker chooses a recording path when the operator did not give one.
// An empty path with a nil error means the choice was cancelled.
type TargetPicker interface {
	PickTarget(ctx context.Context) (string, error)
}

// TimestampPicker names recordings after the moment they start,
// e.g. <Dir>/serial-20260118-140502.log.
type TimestampPicker struct {
	Dir    string
	Prefix string
	Now    func() time.Time
}

func (p TimestampPicker) PickTarget(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.Suggest(), nil
}

// Suggest returns the path PickTarget would choose now.
func (p TimestampPicker) Suggest() string {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	prefix := p.Prefix
	if prefix == "" {
		prefix = "serial"
	}
	dir := p.Dir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s.log", prefix, now().Format("20060102-150405")))
}
