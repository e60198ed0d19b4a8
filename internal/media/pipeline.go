// Package media downloads, uploads and expires message media and avatars.
package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/connectivity"
	"github.com/matheus3301/chatsync/internal/cryptor"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/matheus3301/chatsync/internal/syncerr"
	"go.uber.org/zap"
)

// Kind selects the file name and bucket of a media item.
type Kind string

const (
	Photo  Kind = "photo"
	Video  Kind = "video"
	Audio  Kind = "audio"
	Avatar Kind = "avatar"
)

// ParseKind accepts the Kind names.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case Photo, Video, Audio, Avatar:
		return k, nil
	}
	return "", fmt.Errorf("media kind %q: %w", s, syncerr.ErrUnsupported)
}

// KindOf maps a message type to its media kind.
func KindOf(t model.MessageType) (Kind, bool) {
	switch t {
	case model.MessagePhoto:
		return Photo, true
	case model.MessageVideo:
		return Video, true
	case model.MessageAudio:
		return Audio, true
	}
	return "", false
}

func (k Kind) ext() string {
	switch k {
	case Video:
		return ".mp4"
	case Audio:
		return ".m4a"
	}
	return ".jpg"
}

func (k Kind) bucket() string {
	if k == Avatar {
		return remote.BucketUser
	}
	return remote.BucketMedia
}

func (k Kind) messageType() model.MessageType {
	switch k {
	case Video:
		return model.MessageVideo
	case Audio:
		return model.MessageAudio
	}
	return model.MessagePhoto
}

// Key is the blob key and local file name of name.
func (k Kind) Key(name string) string { return name + k.ext() }

// State is the outcome of Ensure.
type State string

const (
	Ready   State = "ready"
	Pending State = "pending"
	Manual  State = "manual"
)

// Sentinel reasons.
const (
	ReasonPolicy = "policy"
	ReasonFailed = "failed"
)

// LeaseTTL is how long a .loading lease blocks other fetches.
const LeaseTTL = 60 * time.Second

// Result describes a media item after Ensure.
type Result struct {
	State  State
	Path   string
	Reason string
}

// Profile returns the current user's Person; nil means unknown.
type Profile func(ctx context.Context) (*model.Person, error)

// Pipeline resolves media to local files, fetching from the blob store when
// the user's network policy allows it.
type Pipeline struct {
	dir     string
	blobs   remote.Blobs
	cryptor cryptor.Cryptor
	net     connectivity.Checker
	profile Profile
	bus     *bus.Bus
	logger  *zap.Logger
	now     func() time.Time

	// leaseMu makes replacing a stale lease atomic within the daemon; the
	// session lock keeps other processes out.
	leaseMu sync.Mutex
}

func NewPipeline(dir string, blobs remote.Blobs, c cryptor.Cryptor, net connectivity.Checker, profile Profile, b *bus.Bus, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		dir:     dir,
		blobs:   blobs,
		cryptor: c,
		net:     net,
		profile: profile,
		bus:     b,
		logger:  logger.Named("media"),
		now:     time.Now,
	}
}

// Path is where name of kind lives locally.
func (p *Pipeline) Path(name string, kind Kind) string {
	return filepath.Join(p.dir, kind.bucket(), kind.Key(name))
}

// Ensure makes name available locally if it can. chatID selects the
// decryption key and is ignored for avatars.
func (p *Pipeline) Ensure(ctx context.Context, name string, kind Kind, chatID string) (Result, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return Result{}, fmt.Errorf("media name %q: %w", name, syncerr.ErrUnsupported)
	}
	path := p.Path(name, kind)
	if exists(path) {
		return Result{State: Ready, Path: path}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Result{}, fmt.Errorf("create media dir: %w", err)
	}

	switch reason := readSentinel(path); reason {
	case ReasonFailed:
		return Result{State: Manual, Path: path, Reason: ReasonFailed}, nil
	case ReasonPolicy:
		gated, err := p.gated(ctx, kind)
		if err != nil {
			return Result{}, err
		}
		if gated {
			return Result{State: Manual, Path: path, Reason: ReasonPolicy}, nil
		}
		_ = os.Remove(path + ".manual")
	}

	gated, err := p.gated(ctx, kind)
	if err != nil {
		return Result{}, err
	}
	if gated {
		if err := writeSentinel(path, ReasonPolicy); err != nil {
			return Result{}, err
		}
		p.bus.Emit(bus.KindMediaManual, bus.Media{Name: name, Kind: string(kind), Path: path, Reason: ReasonPolicy})
		return Result{State: Manual, Path: path, Reason: ReasonPolicy}, nil
	}

	if !p.takeLease(path) {
		return Result{State: Pending, Path: path}, nil
	}
	defer func() { _ = os.Remove(path + ".loading") }()
	if exists(path) {
		return Result{State: Ready, Path: path}, nil
	}

	if err := p.fetch(ctx, name, kind, chatID, path); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		p.logger.Warn("media fetch failed", zap.String("name", name), zap.String("kind", string(kind)), zap.Error(err))
		if err := writeSentinel(path, ReasonFailed); err != nil {
			return Result{}, err
		}
		p.bus.Emit(bus.KindMediaFailed, bus.Media{Name: name, Kind: string(kind), Path: path, Reason: ReasonFailed})
		return Result{State: Manual, Path: path, Reason: ReasonFailed}, nil
	}
	p.bus.Emit(bus.KindMediaReady, bus.Media{Name: name, Kind: string(kind), Path: path})
	return Result{State: Ready, Path: path}, nil
}

// ClearManual removes the manual sentinel so the next Ensure fetches. It
// does not bypass the network policy.
func (p *Pipeline) ClearManual(name string, kind Kind) error {
	err := os.Remove(p.Path(name, kind) + ".manual")
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// gated reports whether the policy forbids an automatic fetch right now.
// Avatars are never gated.
func (p *Pipeline) gated(ctx context.Context, kind Kind) (bool, error) {
	if kind == Avatar {
		return false, nil
	}
	me, err := p.profile(ctx)
	if err != nil {
		return false, fmt.Errorf("load network policy: %w", err)
	}
	if me == nil {
		return false, nil
	}
	switch me.Policy(kind.messageType()) {
	case model.NetworkManual:
		return true, nil
	case model.NetworkWiFi:
		return !p.net.IsOnWifi(), nil
	}
	return false, nil
}

// takeLease creates the .loading file exclusively. A lease older than
// LeaseTTL is treated as abandoned and replaced.
func (p *Pipeline) takeLease(path string) bool {
	lease := path + ".loading"
	p.leaseMu.Lock()
	defer p.leaseMu.Unlock()

	f, err := os.OpenFile(lease, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if errors.Is(err, os.ErrExist) {
		info, statErr := os.Stat(lease)
		if statErr == nil && p.now().Sub(info.ModTime()) < LeaseTTL {
			return false
		}
		if err := os.Remove(lease); err != nil && !errors.Is(err, os.ErrNotExist) {
			return false
		}
		f, err = os.OpenFile(lease, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	}
	if err != nil {
		p.logger.Warn("take media lease", zap.String("path", lease), zap.Error(err))
		return false
	}
	_ = f.Close()
	now := p.now()
	_ = os.Chtimes(lease, now, now)
	return true
}

func (p *Pipeline) fetch(ctx context.Context, name string, kind Kind, chatID, path string) error {
	tmp := path + ".download"
	defer func() { _ = os.Remove(tmp) }()
	if err := p.blobs.Get(ctx, kind.bucket(), kind.Key(name), tmp); err != nil {
		return err
	}
	if kind != Avatar {
		if err := p.cryptor.Decrypt(tmp, chatID); err != nil {
			return err
		}
	}
	return os.Rename(tmp, path)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func readSentinel(path string) string {
	b, err := os.ReadFile(path + ".manual")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func writeSentinel(path, reason string) error {
	if err := os.WriteFile(path+".manual", []byte(reason), 0o600); err != nil {
		return fmt.Errorf("write manual sentinel: %w", err)
	}
	return nil
}
