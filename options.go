package fimo

import (
	"errors"

	"github.com/fimoengine/fimo/tracing"
)

// ConfigTag identifies which config record a Config value carries.
// init rejects an unrecognized tag and rejects the same tag appearing
// twice in one Options list.
type ConfigTag uint8

const (
	TagTracingConfig ConfigTag = iota
	TagModulesConfig
)

// Config is one entry in the ordered list passed to Init.
type Config interface {
	configTag() ConfigTag
}

// TracingConfig configures the tracing subsystem at Init.
type TracingConfig struct {
	MaxLevel        tracing.Level
	Subscribers     []tracing.Subscriber
	FormatBufferLen int
	AppName         string
	RegisterThread  bool
}

func (TracingConfig) configTag() ConfigTag { return TagTracingConfig }

// FeatureFlag is the verdict requested for a numbered modules-subsystem
// feature.
type FeatureFlag uint8

const (
	FeatureRequired FeatureFlag = iota
	FeatureOn
	FeatureOff
)

// FeatureRequest is one entry in ModulesConfig.FeatureRequests.
type FeatureRequest struct {
	Tag  uint16
	Flag FeatureFlag
}

// ModulesProfile selects the module subsystem's runtime posture.
type ModulesProfile uint8

const (
	ProfileRelease ModulesProfile = iota
	ProfileDev
)

// ModulesConfig configures the modules subsystem at Init.
type ModulesConfig struct {
	Profile         ModulesProfile
	FeatureRequests []FeatureRequest
}

func (ModulesConfig) configTag() ConfigTag { return TagModulesConfig }

// Options is the ordered list of tagged config records passed to Init.
type Options []Config

var (
	ErrUnknownConfigTag = errors.New("fimo: unrecognized config tag")
	ErrDuplicateConfigTag = errors.New("fimo: config tag appears more than once")
)

// validate rejects unknown or duplicate tags, returning the two
// recognized records (nil if absent).
func (o Options) validate() (*TracingConfig, *ModulesConfig, error) {
	var tc *TracingConfig
	var mc *ModulesConfig
	seen := make(map[ConfigTag]bool, len(o))
	for _, cfg := range o {
		tag := cfg.configTag()
		if seen[tag] {
			return nil, nil, ErrDuplicateConfigTag
		}
		seen[tag] = true
		switch v := cfg.(type) {
		case TracingConfig:
			tc = &v
		case ModulesConfig:
			mc = &v
		default:
			return nil, nil, ErrUnknownConfigTag
		}
	}
	return tc, mc, nil
}
