package config

import "fmt"

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.ProcessID < 0 {
		return fmt.Errorf("process.id must be >= 0")
	}
	if cfg.P2P.Port < 0 || cfg.P2P.Port > 65535 {
		return fmt.Errorf("p2p.port must be in range [0, 65535]")
	}
	if cfg.P2P.KRecv <= 0 {
		return fmt.Errorf("p2p.krecv must be > 0")
	}
	if cfg.CommitteeFile == "" {
		return fmt.Errorf("committee file path is required")
	}
	switch cfg.ValidationMode {
	case ValidationNone, ValidationSnap, ValidationLinear:
	default:
		return fmt.Errorf("validation must be one of none, snap, linear; got %q", cfg.ValidationMode)
	}
	switch cfg.GossipStrategy {
	case GossipUniformRandom, GossipNonRecentRandom:
	default:
		return fmt.Errorf("gossip.strategy must be uniform_random or non_recent_random; got %q", cfg.GossipStrategy)
	}
	if cfg.NParents < 2 {
		return fmt.Errorf("unit.nparents must be >= 2 (§4.3 rule 2)")
	}
	return nil
}

// ValidateCommittee checks a loaded committee for obvious mistakes.
func ValidateCommittee(c *Committee) error {
	if c == nil {
		return fmt.Errorf("committee is nil")
	}
	if len(c.Members) < 4 {
		return fmt.Errorf("committee must have at least 4 members for BFT quorum to be meaningful, got %d", len(c.Members))
	}
	seen := make(map[string]struct{}, len(c.Members))
	for i, m := range c.Members {
		if m.Address == "" {
			return fmt.Errorf("member %d: address is empty", i)
		}
		if m.Port <= 0 || m.Port > 65535 {
			return fmt.Errorf("member %d: port %d out of range", i, m.Port)
		}
		if _, err := m.PubKeyBytes(); err != nil {
			return err
		}
		key := fmt.Sprintf("%s:%d", m.Address, m.Port)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("duplicate member address %s", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}
