package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads node configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

// ApplyFileConfig applies key=value pairs loaded from a .conf file onto cfg.
// Unknown keys are rejected to surface operator typos early (ConfigInvalid).
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		var err error
		switch key {
		case "process.id":
			cfg.ProcessID, err = strconv.Atoi(value)
		case "datadir":
			cfg.DataDir = value
		case "committee":
			cfg.CommitteeFile = value
		case "keyfile":
			cfg.KeyFile = value
		case "p2p.listen":
			cfg.P2P.ListenAddr = value
		case "p2p.port":
			cfg.P2P.Port, err = strconv.Atoi(value)
		case "p2p.krecv":
			cfg.P2P.KRecv, err = strconv.Atoi(value)
		case "ingress.enabled":
			cfg.Ingress.Enabled, err = strconv.ParseBool(value)
		case "ingress.addr":
			cfg.Ingress.Addr = value
		case "ingress.port":
			cfg.Ingress.Port, err = strconv.Atoi(value)
		case "limits.maxunits":
			cfg.Limits.MaxUnits, err = strconv.Atoi(value)
		case "limits.maxlevel":
			cfg.Limits.MaxLevel, err = strconv.Atoi(value)
		case "validation":
			cfg.ValidationMode = ValidationMode(value)
		case "gossip.strategy":
			cfg.GossipStrategy = GossipStrategy(value)
		case "cadence.create":
			cfg.CreatePeriod, err = time.ParseDuration(value)
		case "cadence.sync":
			cfg.SyncPeriod, err = time.ParseDuration(value)
		case "unit.nparents":
			cfg.NParents, err = strconv.Atoi(value)
		case "log.level":
			cfg.Log.Level = value
		case "log.file":
			cfg.Log.File = value
		case "log.json":
			cfg.Log.JSON, err = strconv.ParseBool(value)
		default:
			return fmt.Errorf("unknown config key %q", key)
		}
		if err != nil {
			return fmt.Errorf("parsing %q = %q: %w", key, value, err)
		}
	}
	return nil
}
