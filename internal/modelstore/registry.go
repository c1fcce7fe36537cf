// Package modelstore persists trained tagger artifacts per template and
// serves the currently-active one to concurrent extraction requests.
// Activation is a pointer swap: requests in flight keep whichever artifact
// they resolved, and a half-written file can never become active because
// artifacts are written to a temp file, fsynced and renamed before the
// pointer moves.
package modelstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fieldforge/extract-cli/internal/tagger"
)

// ErrNoModel means no active artifact exists for the template. Callers
// treat it as "strategy unavailable", not as a failure.
var ErrNoModel = eris.New("modelstore: no active model")

// ErrCorrupt means the active artifact exists but fails to load. Same
// degradation as ErrNoModel, logged louder.
var ErrCorrupt = eris.New("modelstore: artifact corrupt")

// Entry is a resolved artifact snapshot.
type Entry struct {
	Model   *tagger.Model
	Version int
}

// Registry is the on-disk artifact store plus an in-memory cache of each
// template's active model.
type Registry struct {
	dir string

	mu     sync.RWMutex
	active map[string]*Entry
}

// New returns a Registry rooted at dir.
func New(dir string) *Registry {
	return &Registry{dir: dir, active: make(map[string]*Entry)}
}

// Active returns the template's active artifact, loading and caching it on
// first use. Returns ErrNoModel / ErrCorrupt for the two degraded cases.
func (r *Registry) Active(templateID string) (*Entry, error) {
	r.mu.RLock()
	e, ok := r.active[templateID]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	version, err := r.readActivePointer(templateID)
	if err != nil {
		return nil, err
	}
	m, err := r.load(templateID, version)
	if err != nil {
		return nil, err
	}
	e = &Entry{Model: m, Version: version}

	r.mu.Lock()
	// Another reader may have raced us here; keep whichever is cached.
	if cached, ok := r.active[templateID]; ok {
		e = cached
	} else {
		r.active[templateID] = e
	}
	r.mu.Unlock()
	return e, nil
}

// ActiveVersion returns the active version number, or 0 with ErrNoModel.
func (r *Registry) ActiveVersion(templateID string) (int, error) {
	r.mu.RLock()
	if e, ok := r.active[templateID]; ok {
		r.mu.RUnlock()
		return e.Version, nil
	}
	r.mu.RUnlock()
	return r.readActivePointer(templateID)
}

// Save writes m as the template's next artifact version and returns that
// version. The artifact is durable after Save but not active until
// Activate.
func (r *Registry) Save(templateID string, m *tagger.Model) (int, error) {
	if !m.Valid() {
		return 0, eris.New("modelstore: refusing to save an empty model")
	}
	tplDir := filepath.Join(r.dir, templateID)
	if err := os.MkdirAll(tplDir, 0o755); err != nil {
		return 0, eris.Wrap(err, "modelstore: create template dir")
	}

	version, err := r.nextVersion(tplDir)
	if err != nil {
		return 0, err
	}

	data, err := json.Marshal(m)
	if err != nil {
		return 0, eris.Wrap(err, "modelstore: marshal artifact")
	}
	if err := writeAtomic(r.artifactPath(templateID, version), data); err != nil {
		return 0, err
	}

	zap.L().Info("modelstore: saved artifact",
		zap.String("template_id", templateID),
		zap.Int("version", version),
		zap.Int("bytes", len(data)),
	)
	return version, nil
}

// Activate validates the saved artifact, swaps the on-disk active pointer
// and replaces the cached entry. After Activate returns, new requests see
// the new version; in-flight requests keep their snapshot.
func (r *Registry) Activate(templateID string, version int) error {
	m, err := r.load(templateID, version)
	if err != nil {
		return err
	}

	pointer := filepath.Join(r.dir, templateID, "active")
	if err := writeAtomic(pointer, []byte(strconv.Itoa(version))); err != nil {
		return err
	}

	r.mu.Lock()
	r.active[templateID] = &Entry{Model: m, Version: version}
	r.mu.Unlock()

	zap.L().Info("modelstore: activated artifact",
		zap.String("template_id", templateID),
		zap.Int("version", version),
	)
	return nil
}

func (r *Registry) artifactPath(templateID string, version int) string {
	return filepath.Join(r.dir, templateID, fmt.Sprintf("v%d.json", version))
}

func (r *Registry) readActivePointer(templateID string) (int, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, templateID, "active"))
	if os.IsNotExist(err) {
		return 0, ErrNoModel
	}
	if err != nil {
		return 0, eris.Wrapf(err, "modelstore: read active pointer for %s", templateID)
	}
	version, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || version <= 0 {
		return 0, ErrCorrupt
	}
	return version, nil
}

func (r *Registry) load(templateID string, version int) (*tagger.Model, error) {
	data, err := os.ReadFile(r.artifactPath(templateID, version))
	if os.IsNotExist(err) {
		return nil, ErrNoModel
	}
	if err != nil {
		return nil, eris.Wrapf(err, "modelstore: read artifact %s v%d", templateID, version)
	}
	var m tagger.Model
	if err := json.Unmarshal(data, &m); err != nil {
		zap.L().Warn("modelstore: artifact failed to parse",
			zap.String("template_id", templateID),
			zap.Int("version", version),
			zap.Error(err),
		)
		return nil, ErrCorrupt
	}
	if !m.Valid() {
		zap.L().Warn("modelstore: artifact is structurally empty",
			zap.String("template_id", templateID),
			zap.Int("version", version),
		)
		return nil, ErrCorrupt
	}
	return &m, nil
}

func (r *Registry) nextVersion(tplDir string) (int, error) {
	entries, err := os.ReadDir(tplDir)
	if err != nil {
		return 0, eris.Wrap(err, "modelstore: list versions")
	}
	versions := make([]int, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "v") && strings.HasSuffix(name, ".json") {
			if n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "v"), ".json")); err == nil {
				versions = append(versions, n)
			}
		}
	}
	if len(versions) == 0 {
		return 1, nil
	}
	sort.Ints(versions)
	return versions[len(versions)-1] + 1, nil
}

// writeAtomic writes data via a temp file + fsync + rename in the target's
// directory, so readers never observe a partial file.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return eris.Wrap(err, "modelstore: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return eris.Wrap(err, "modelstore: write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return eris.Wrap(err, "modelstore: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "modelstore: close temp file")
	}
	return eris.Wrap(os.Rename(tmpName, path), "modelstore: rename into place")
}
