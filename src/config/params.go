package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/stake-plus/commons/src/consent"
	"github.com/stake-plus/commons/src/data"
	"github.com/stake-plus/commons/src/governance"
)

// Protocol holds the tunable thresholds of both engines.
type Protocol struct {
	Governance governance.Params
	Cooldown   time.Duration
}

func DefaultProtocol() Protocol {
	return Protocol{Governance: governance.DefaultParams(), Cooldown: consent.DefaultCooldown}
}

type paramsFile struct {
	CoreConcernThreshold uint32 `toml:"core_concern_threshold"`
	MinQuorum            uint32 `toml:"min_quorum"`
	SupermajorityPercent uint32 `toml:"supermajority_percent"`
	MaxPhaseDays         uint32 `toml:"max_phase_days"`
	CooldownDuration     string `toml:"cooldown_duration"`
}

// LoadProtocol starts from the defaults, applies the TOML file at path (if
// any) and then the settings table, which wins.
func LoadProtocol(path string) (Protocol, error) {
	p := DefaultProtocol()
	if strings.TrimSpace(path) != "" {
		if err := p.applyFile(path); err != nil {
			return Protocol{}, err
		}
	}
	if err := p.applySettings(data.GetSetting); err != nil {
		return Protocol{}, err
	}
	if err := p.Governance.Validate(); err != nil {
		return Protocol{}, err
	}
	if p.Cooldown <= 0 {
		return Protocol{}, fmt.Errorf("cooldown duration must be positive, got %s", p.Cooldown)
	}
	return p, nil
}

func (p *Protocol) applyFile(path string) error {
	var raw paramsFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load params: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load params: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("core_concern_threshold") {
		p.Governance.CoreConcernThreshold = raw.CoreConcernThreshold
	}
	if meta.IsDefined("min_quorum") {
		p.Governance.MinQuorum = raw.MinQuorum
	}
	if meta.IsDefined("supermajority_percent") {
		p.Governance.SupermajorityPercent = raw.SupermajorityPercent
	}
	if meta.IsDefined("max_phase_days") {
		p.Governance.MaxPhaseDays = raw.MaxPhaseDays
	}
	if meta.IsDefined("cooldown_duration") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.CooldownDuration))
		if err != nil {
			return fmt.Errorf("parse cooldown_duration: %w", err)
		}
		p.Cooldown = d
	}
	return nil
}

func (p *Protocol) applySettings(get func(string) string) error {
	for key, dst := range map[string]*uint32{
		"core_concern_threshold": &p.Governance.CoreConcernThreshold,
		"min_quorum":             &p.Governance.MinQuorum,
		"supermajority_percent":  &p.Governance.SupermajorityPercent,
		"max_phase_days":         &p.Governance.MaxPhaseDays,
	} {
		v := strings.TrimSpace(get(key))
		if v == "" {
			continue
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("setting %s: %w", key, err)
		}
		*dst = uint32(n)
	}
	if v := strings.TrimSpace(get("cooldown_duration")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("setting cooldown_duration: %w", err)
		}
		p.Cooldown = d
	}
	return nil
}
