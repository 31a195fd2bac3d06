package content

import (
	"context"
	"fmt"
	"sync"
)

// Provider supplies a point-in-time snapshot of the content bound to a
// template. The fabricator never writes through it.
type Provider interface {
	SourceMaterial(ctx context.Context, templateKey string) (*SourceMaterial, error)
}

// FileProvider serves templates out of a library document on disk. The file
// is read once; snapshots are cached per template key.
type FileProvider struct {
	path string

	mu    sync.Mutex
	lib   *Library
	cache map[string]*SourceMaterial
}

// NewFileProvider returns a provider for the library at path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path, cache: map[string]*SourceMaterial{}}
}

// SourceMaterial implements Provider.
func (p *FileProvider) SourceMaterial(ctx context.Context, templateKey string) (*SourceMaterial, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if sm, ok := p.cache[templateKey]; ok {
		return sm, nil
	}
	if p.lib == nil {
		lib, err := LoadLibrary(p.path)
		if err != nil {
			return nil, err
		}
		p.lib = lib
	}
	c, err := p.lib.Bind(templateKey)
	if err != nil {
		return nil, err
	}
	sm := NewSourceMaterial(templateKey, c)
	p.cache[templateKey] = sm
	return sm, nil
}

// StaticProvider serves fixed snapshots, mostly for tests and one-shot crafts.
type StaticProvider map[string]*SourceMaterial

// SourceMaterial implements Provider.
func (p StaticProvider) SourceMaterial(_ context.Context, templateKey string) (*SourceMaterial, error) {
	sm, ok := p[templateKey]
	if !ok {
		return nil, fmt.Errorf("content: unknown template %q", templateKey)
	}
	return sm, nil
}
