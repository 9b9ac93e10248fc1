package hcl

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/stellar-lua/stellar/internal/channel"
	"github.com/stellar-lua/stellar/internal/config"
	"github.com/stellar-lua/stellar/internal/ctxlog"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses one host configuration file and translates it into the
// format-agnostic model.
func (l *Loader) Load(ctx context.Context, path string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path", path)

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var root fileRoot
	diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	model, err := l.translate(&root)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}

	logger.Debug("HCL loading complete.",
		"role", model.Host.Role,
		"channels", len(model.Reservations),
		"library_paths", len(model.Libraries),
	)
	return model, nil
}

// translate converts the decoded HCL schema into the agnostic model,
// validating every field that has a constrained domain.
func (l *Loader) translate(root *fileRoot) (*config.Model, error) {
	if root.Host == nil {
		return nil, fmt.Errorf("a host block is required")
	}

	host, err := l.translateHost(root.Host)
	if err != nil {
		return nil, err
	}
	model := &config.Model{Host: host}

	seen := make(map[string]channel.Kind)
	for _, c := range root.Channels {
		kind, err := channel.ParseKind(c.Kind)
		if err != nil {
			return nil, fmt.Errorf("channel '%s': %w", c.Name, err)
		}
		if prev, ok := seen[c.Name]; ok {
			if prev != kind {
				return nil, fmt.Errorf("channel '%s' declared as both %s and %s", c.Name, prev, kind)
			}
			continue
		}
		seen[c.Name] = kind
		model.Reservations = append(model.Reservations, &config.Reservation{
			Name: c.Name,
			Kind: kind,
		})
	}

	for _, lib := range root.Libraries {
		if lib.Dir == "" {
			return nil, fmt.Errorf("library_path '%s': dir must not be empty", lib.Name)
		}
		model.Libraries = append(model.Libraries, &config.LibraryPath{
			Name:    lib.Name,
			Dir:     lib.Dir,
			Private: lib.Private,
		})
	}

	return model, nil
}

// translateHost validates the host block and applies timing defaults.
func (l *Loader) translateHost(h *hostBlock) (*config.Host, error) {
	role, err := channel.ParseRole(h.Role)
	if err != nil {
		return nil, err
	}

	heartbeat, err := optionalDuration(h.Heartbeat, config.DefaultHeartbeat)
	if err != nil {
		return nil, fmt.Errorf("heartbeat: %w", err)
	}
	timeUnit, err := optionalDuration(h.TimeUnit, config.DefaultTimeUnit)
	if err != nil {
		return nil, fmt.Errorf("time_unit: %w", err)
	}

	return &config.Host{
		Role:      role,
		Name:      h.Name,
		Listen:    h.Listen,
		URL:       h.URL,
		Heartbeat: heartbeat,
		TimeUnit:  timeUnit,
		Services:  h.Services,
	}, nil
}

// optionalDuration parses a duration string, falling back when it is absent.
func optionalDuration(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", d)
	}
	return d, nil
}
