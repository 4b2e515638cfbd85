package snapshot

import (
	"context"
	"fmt"
	"time"

	"replicurse/internal/logging"
)

// LocalProvider is the platform-specific facility that actually requests
// and releases a volume snapshot and creates the directory-link the
// copier reads from. Segregated from RemoteProvider (interface
// segregation: local and remote snapshot lifecycles share no operation
// signatures) so a platform binding only implements what it supports.
type LocalProvider interface {
	Preflight(ctx context.Context, volume string) error
	Create(ctx context.Context, volume string) (id, devicePath string, err error)
	CreateLink(ctx context.Context, devicePath, tempDir string) (linkPath string, err error)
	RemoveLink(ctx context.Context, linkPath string) error
	Release(ctx context.Context, id string) error
}

// RemoteProvider is the platform-specific facility for snapshotting a
// volume behind a remote SMB/CIFS-style share over a management session.
type RemoteProvider interface {
	OpenSession(ctx context.Context, server string) error
	ResolveShare(ctx context.Context, server, share string) (localPath string, err error)
	Create(ctx context.Context, server, localPath string) (id, devicePath string, err error)
	CreateJunction(ctx context.Context, server, shareLocalPath, devicePath string) (junctionName string, err error)
	RemoveJunction(ctx context.Context, server, shareLocalPath, junctionName string) error
	Release(ctx context.Context, server, id string) error
}

// RetryPolicy bounds snapshot-creation retry behavior: up to N attempts
// with a fixed delay D between them, applied only to transient failures.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Manager creates, tears down, and tracks snapshots.
type Manager struct {
	Local   LocalProvider
	Remote  RemoteProvider
	Tracker *Tracker
	Retry   RetryPolicy
	TempDir string
	log     *logging.Logger
}

// New builds a Manager. Either provider may be nil if this deployment
// only ever uses one mode; CreateLocal/CreateRemote return a clear error
// in that case rather than panicking.
func New(local LocalProvider, remote RemoteProvider, tracker *Tracker, retry RetryPolicy, tempDir string, log *logging.Logger) *Manager {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 3
	}
	if retry.Delay <= 0 {
		retry.Delay = 5 * time.Second
	}
	return &Manager{Local: local, Remote: remote, Tracker: tracker, Retry: retry, TempDir: tempDir, log: log}
}

// CreateLocal snapshots volume and returns a Snapshot whose LinkPath the
// copier should use as its source.
func (m *Manager) CreateLocal(ctx context.Context, volume string) (Snapshot, error) {
	if m.Local == nil {
		return Snapshot{}, fmt.Errorf("create local snapshot: no local provider configured")
	}
	if err := m.Local.Preflight(ctx, volume); err != nil {
		// Every preflight error is logged as a warning and the attempt
		// goes ahead; no preflight failure aborts creation here, and a
		// facility or privilege problem surfaces only through Create.
		if m.log != nil {
			m.log.Warnf("snapshot preflight warning for %s: %v", volume, err)
		}
	}

	var id, devicePath string
	var err error
	for attempt := 1; attempt <= m.Retry.MaxAttempts; attempt++ {
		id, devicePath, err = m.Local.Create(ctx, volume)
		if err == nil {
			break
		}
		if !IsTransient(0, err.Error()) || attempt == m.Retry.MaxAttempts {
			return Snapshot{}, fmt.Errorf("create local snapshot of %s: %w", volume, err)
		}
		if m.log != nil {
			m.log.Warnf("transient snapshot failure for %s (attempt %d/%d): %v", volume, attempt, m.Retry.MaxAttempts, err)
		}
		time.Sleep(m.Retry.Delay)
	}

	link, err := m.Local.CreateLink(ctx, devicePath, m.TempDir)
	if err != nil {
		_ = m.Local.Release(ctx, id)
		return Snapshot{}, fmt.Errorf("create directory link for snapshot %s: %w", id, err)
	}

	snap := Snapshot{ID: id, SourceVolume: volume, DevicePath: devicePath, LinkPath: link, CreatedAt: time.Now()}
	if m.Tracker != nil {
		if err := m.Tracker.Record(snap); err != nil && m.log != nil {
			m.log.Warnf("failed to record snapshot %s in tracking file: %v", id, err)
		}
	}
	return snap, nil
}

// CreateRemote snapshots the volume backing \\server\share.
func (m *Manager) CreateRemote(ctx context.Context, server, share, relative string) (Snapshot, error) {
	if m.Remote == nil {
		return Snapshot{}, fmt.Errorf("create remote snapshot: no remote provider configured")
	}
	if err := m.Remote.OpenSession(ctx, server); err != nil {
		return Snapshot{}, fmt.Errorf("open remote management session to %s: %w", server, err)
	}

	shareLocalPath, err := m.Remote.ResolveShare(ctx, server, share)
	if err != nil {
		return Snapshot{}, fmt.Errorf("resolve share %s on %s: %w", share, server, err)
	}

	var id, devicePath string
	for attempt := 1; attempt <= m.Retry.MaxAttempts; attempt++ {
		id, devicePath, err = m.Remote.Create(ctx, server, shareLocalPath)
		if err == nil {
			break
		}
		if !IsTransient(0, err.Error()) || attempt == m.Retry.MaxAttempts {
			return Snapshot{}, fmt.Errorf("create remote snapshot of %s on %s: %w", share, server, err)
		}
		if m.log != nil {
			m.log.Warnf("transient remote snapshot failure for %s (attempt %d/%d): %v", share, attempt, m.Retry.MaxAttempts, err)
		}
		time.Sleep(m.Retry.Delay)
	}

	junctionName, err := m.Remote.CreateJunction(ctx, server, shareLocalPath, devicePath)
	if err != nil {
		_ = m.Remote.Release(ctx, server, id)
		return Snapshot{}, fmt.Errorf("create server-side junction for snapshot %s: %w", id, err)
	}

	snap := Snapshot{
		ID:              id,
		SourceVolume:    shareLocalPath,
		DevicePath:      devicePath,
		IsRemote:        true,
		ServerName:      server,
		ShareName:       share,
		ServerLocalPath: shareLocalPath,
		JunctionPath:    junctionName,
		CreatedAt:       time.Now(),
	}
	if m.Tracker != nil {
		if err := m.Tracker.Record(snap); err != nil && m.log != nil {
			m.log.Warnf("failed to record remote snapshot %s in tracking file: %v", id, err)
		}
	}
	return snap, nil
}

// Teardown releases snap, junction/link first, then the snapshot itself,
// matching the spec's required cleanup ordering.
func (m *Manager) Teardown(ctx context.Context, snap Snapshot) error {
	var firstErr error

	if snap.IsRemote {
		if m.Remote != nil {
			if err := m.Remote.RemoveJunction(ctx, snap.ServerName, snap.ServerLocalPath, snap.JunctionPath); err != nil {
				firstErr = fmt.Errorf("remove junction for snapshot %s: %w", snap.ID, err)
			}
			if err := m.Remote.Release(ctx, snap.ServerName, snap.ID); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("release remote snapshot %s: %w", snap.ID, err)
			}
		}
	} else if m.Local != nil {
		if err := m.Local.RemoveLink(ctx, snap.LinkPath); err != nil {
			firstErr = fmt.Errorf("remove directory link for snapshot %s: %w", snap.ID, err)
		}
		if err := m.Local.Release(ctx, snap.ID); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("release local snapshot %s: %w", snap.ID, err)
		}
	}

	if m.Tracker != nil {
		if err := m.Tracker.Forget(snap.ID); err != nil && m.log != nil {
			m.log.Warnf("failed to forget snapshot %s in tracking file: %v", snap.ID, err)
		}
	}

	return firstErr
}
