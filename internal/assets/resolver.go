package assets

import (
	"fmt"
	"slices"
)

// Resolver tries loaders in order. A loader reporting not-found passes the
// lookup on; any other error stops it.
type Resolver struct {
	loaders []AssetLoader
}

var _ AssetLoader = (*Resolver)(nil)

// NewResolver chains loaders, highest priority first.
func NewResolver(loaders ...AssetLoader) *Resolver {
	return &Resolver{loaders: loaders}
}

// NewAssetResolver puts the directory at base, when set, in front of the
// embedded assets.
func NewAssetResolver(base string) (*Resolver, error) {
	if base == "" {
		return NewResolver(NewEmbeddedLoader()), nil
	}
	custom, err := NewFilesystemLoader(base)
	if err != nil {
		return nil, err
	}
	return NewResolver(custom, NewEmbeddedLoader()), nil
}

func (r *Resolver) LoadStyle(name string) (string, error) {
	return first(r.loaders, func(l AssetLoader) (string, error) { return l.LoadStyle(name) }, ErrStyleNotFound, name)
}

func (r *Resolver) LoadFont(name string) ([]byte, error) {
	return first(r.loaders, func(l AssetLoader) ([]byte, error) { return l.LoadFont(name) }, ErrFontNotFound, name)
}

// Fonts merges every loader's catalog.
func (r *Resolver) Fonts() ([]string, error) {
	var all []string
	for _, l := range r.loaders {
		names, err := l.Fonts()
		if err != nil {
			return nil, err
		}
		all = append(all, names...)
	}
	slices.Sort(all)
	return slices.Compact(all), nil
}

func first[T any](loaders []AssetLoader, load func(AssetLoader) (T, error), notFound error, name string) (T, error) {
	var zero T
	if len(loaders) == 0 {
		if err := ValidateAssetName(name); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("%w: %q", notFound, name)
	}
	var err error
	for _, l := range loaders {
		var v T
		if v, err = load(l); err == nil {
			return v, nil
		}
		if !IsNotFound(err) {
			return zero, err
		}
	}
	return zero, err
}
