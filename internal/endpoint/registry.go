package endpoint

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/angeloszaimis/uptime-monitor/internal/healthcheck"
)

//go:embed default.yaml
var defaultRegistry []byte

// Endpoint is one monitored target. Everything after URL is display metadata
// and plays no part in probing.
type Endpoint struct {
	ID       int    `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	URL      string `yaml:"url" json:"url"`
	IP       string `yaml:"ip,omitempty" json:"ip,omitempty"`
	Location string `yaml:"location,omitempty" json:"location,omitempty"`
	Region   string `yaml:"region,omitempty" json:"region,omitempty"`
	Flag     string `yaml:"flag,omitempty" json:"flag,omitempty"`
	WSURL    string `yaml:"ws_url,omitempty" json:"wsUrl,omitempty"`
}

func (e Endpoint) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.ID, validation.Required, validation.Min(1)),
		validation.Field(&e.Name, validation.Required),
		validation.Field(&e.URL, validation.Required, validation.By(func(value interface{}) error {
			raw, _ := value.(string)
			var verr *healthcheck.ValidationError
			if err := healthcheck.ValidateTarget(raw); errors.As(err, &verr) {
				return verr.Err
			}
			return nil
		})),
		validation.Field(&e.WSURL, validation.By(ValidateWebsocketURL)),
	)
}

type file struct {
	Endpoints []Endpoint `yaml:"endpoints"`
}

// Registry is an ordered, immutable set of endpoints.
type Registry struct {
	endpoints []Endpoint
	byID      map[int]int
}

// NewRegistry validates endpoints and keeps them in the given order. IDs must
// be unique.
func NewRegistry(endpoints []Endpoint) (*Registry, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("registry has no endpoints")
	}

	r := &Registry{
		endpoints: make([]Endpoint, len(endpoints)),
		byID:      make(map[int]int, len(endpoints)),
	}
	copy(r.endpoints, endpoints)

	for i, e := range r.endpoints {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("endpoint %d (%q): %w", i, e.Name, err)
		}
		if _, dup := r.byID[e.ID]; dup {
			return nil, fmt.Errorf("endpoint %d (%q): duplicate id %d", i, e.Name, e.ID)
		}
		r.byID[e.ID] = i
	}

	return r, nil
}

// Load reads the registry from path. A missing file yields the built-in
// registry; a present but invalid file is an error.
func Load(fsys afero.Fs, path string) (*Registry, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return Default()
	}
	return Parse(data)
}

// Default returns the built-in registry.
func Default() (*Registry, error) {
	return Parse(defaultRegistry)
}

// Parse decodes a YAML registry document.
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	return NewRegistry(f.Endpoints)
}

// All returns the endpoints in registry order. The slice is a copy.
func (r *Registry) All() []Endpoint {
	out := make([]Endpoint, len(r.endpoints))
	copy(out, r.endpoints)
	return out
}

func (r *Registry) Get(id int) (Endpoint, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Endpoint{}, false
	}
	return r.endpoints[i], true
}

func (r *Registry) Len() int {
	return len(r.endpoints)
}

// ValidateWebsocketURL is an ozzo rule accepting an empty string or an
// absolute ws/wss URL.
func ValidateWebsocketURL(value interface{}) error {
	raw, _ := value.(string)
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return validation.NewError("validation_invalid_scheme", "URL must use ws or wss scheme")
	}
	if u.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}
	return nil
}
