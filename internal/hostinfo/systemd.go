package hostinfo

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	sd_dbus "github.com/coreos/go-systemd/v22/dbus"
	"github.com/godbus/dbus/v5"

	"github.com/arenadata/report-poster/internal/report"
)

const SystemdTimeout = 5 * time.Second

// unitConn is the part of *sd_dbus.Conn the provider needs.
type unitConn interface {
	GetUnitNameByPID(ctx context.Context, pid uint32) (string, error)
	GetUnitPropertiesContext(ctx context.Context, unit string) (map[string]interface{}, error)
	Close()
}

// Systemd reports the unit that owns this process.
type Systemd struct {
	conn unitConn
	pid  uint32
	log  *slog.Logger
}

func NewSystemd(ctx context.Context, logger *slog.Logger) (*Systemd, error) {
	conn, err := sd_dbus.NewWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return newSystemd(conn, uint32(os.Getpid()), logger), nil
}

func newSystemd(conn unitConn, pid uint32, logger *slog.Logger) *Systemd {
	if logger == nil {
		logger = slog.Default()
	}
	return &Systemd{conn: conn, pid: pid, log: logger}
}

func (s *Systemd) Close() error {
	if s != nil && s.conn != nil {
		s.conn.Close()
	}
	return nil
}

func (s *Systemd) Collect(ctx context.Context) report.Env {
	if s == nil || s.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, SystemdTimeout)
	defer cancel()

	unit, err := s.conn.GetUnitNameByPID(ctx, s.pid)
	if err != nil {
		if name, ok := dbusErrorName(err); ok {
			// not started by systemd
			s.log.Debug("no systemd unit for process", "pid", s.pid, "err", name)
			return nil
		}
		s.log.Debug("systemd unit lookup", "err", err)
		return nil
	}
	env := report.Env{"systemd.unit": unit}

	props, err := s.conn.GetUnitPropertiesContext(ctx, unit)
	if err != nil {
		s.log.Debug("systemd unit properties", "unit", unit, "err", err)
		return env
	}
	if st, ok := props["ActiveState"].(string); ok {
		env["systemd.active_state"] = st
	}
	if st, ok := props["SubState"].(string); ok {
		env["systemd.sub_state"] = st
	}
	return env
}

// dbusErrorName matches godbus errors whether they travel by value or pointer.
func dbusErrorName(err error) (string, bool) {
	var v dbus.Error
	if errors.As(err, &v) {
		return v.Name, true
	}
	var p *dbus.Error
	if errors.As(err, &p) && p != nil {
		return p.Name, true
	}
	return "", false
}
