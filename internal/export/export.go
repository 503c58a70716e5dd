// Package export renders a [types.CorrectionResult] into a downloadable
// artifact in one of the configured formats.
//
// Formats are configured as an ordered list of {id, enabled} pairs. Exporting
// to an ID that is not configured fails with [ErrFormatUnknown], to a disabled
// one with [ErrFormatDisabled], and to an enabled format no encoder is
// registered for with [ErrFormatUnsupported].
package export

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/MrWong99/reportfix/internal/registry"
	"github.com/MrWong99/reportfix/pkg/types"
)

var (
	ErrFormatUnknown     = errors.New("export: unknown format")
	ErrFormatDisabled    = errors.New("export: format disabled")
	ErrFormatUnsupported = errors.New("export: no encoder for format")
)

// Format is one configured export format.
type Format struct {
	ID      string `yaml:"id"      json:"id"`
	Enabled bool   `yaml:"enabled" json:"enabled"`
}

func (f Format) EntryID() string { return f.ID }
func (f Format) IsEnabled() bool { return f.Enabled }

// DefaultFormats is used when configuration lists none.
var DefaultFormats = []Format{
	{ID: "json", Enabled: true},
	{ID: "text", Enabled: true},
	{ID: "markdown", Enabled: true},
	{ID: "pdf", Enabled: false},
}

// Artifact is a rendered export.
type Artifact struct {
	Format      string
	ContentType string
	Filename    string
	Data        []byte
}

// Option configures an [Exporter].
type Option func(*Exporter)

// WithEncoder registers enc for format id, replacing any built-in encoder.
func WithEncoder(id string, enc Encoder) Option {
	return func(e *Exporter) { e.encoders[id] = enc }
}

// Exporter looks up formats and encodes results. It is safe for concurrent
// use.
type Exporter struct {
	formats  *registry.Catalog[Format]
	encoders map[string]Encoder
}

// New creates an Exporter for formats. Duplicate IDs are rejected.
func New(formats []Format, opts ...Option) (*Exporter, error) {
	if len(formats) == 0 {
		formats = DefaultFormats
	}
	cat, err := registry.NewCatalog("export format", formats)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	e := &Exporter{
		formats: cat,
		encoders: map[string]Encoder{
			"json":     JSON{},
			"text":     Text{},
			"markdown": Markdown{},
		},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Formats returns every configured format in configuration order.
func (e *Exporter) Formats() []Format { return e.formats.List() }

// Export renders result in the format identified by id.
func (e *Exporter) Export(result types.CorrectionResult, id string) (Artifact, error) {
	f, err := e.formats.Get(id)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %q", ErrFormatUnknown, id)
	}
	if !f.Enabled {
		return Artifact{}, fmt.Errorf("%w: %q", ErrFormatDisabled, id)
	}
	enc, ok := e.encoders[id]
	if !ok {
		return Artifact{}, fmt.Errorf("%w: %q", ErrFormatUnsupported, id)
	}

	var buf bytes.Buffer
	if err := enc.Encode(&buf, result); err != nil {
		return Artifact{}, fmt.Errorf("export: encode %s: %w", id, err)
	}
	return Artifact{
		Format:      id,
		ContentType: enc.ContentType(),
		Filename:    "report." + enc.Extension(),
		Data:        buf.Bytes(),
	}, nil
}
