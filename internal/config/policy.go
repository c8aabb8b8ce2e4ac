package config

import (
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/edledger/edledger/internal/auth"
	"github.com/edledger/edledger/internal/db/models"
)

// policyFileSpec is the YAML shape of a tier policy override file:
//
//	version: acme-v2
//	tiers:
//	  teacher:
//	    - grade
//	    - edit-own-course-content
//	  student:
//	    - enroll-self
//	    - view-published-content
//
// Tiers absent from the file receive no grants at all, so a policy file
// replaces the built-in table rather than patching it. This keeps the
// effective policy readable from a single document.
type policyFileSpec struct {
	Version string              `mapstructure:"version"`
	Tiers   map[string][]string `mapstructure:"tiers"`
}

func (s *policyFileSpec) toTable() (*auth.PolicyTable, error) {
	if s.Version == "" {
		return nil, fmt.Errorf("policy file missing version")
	}
	if len(s.Tiers) == 0 {
		return nil, fmt.Errorf("policy file %q grants nothing to any tier", s.Version)
	}

	grants := make(map[models.Tier][]auth.Action, len(s.Tiers))
	for tierName, actionNames := range s.Tiers {
		tier := models.Tier(tierName)
		if !models.ValidTier(tier) {
			return nil, fmt.Errorf("policy file %q: unknown tier %q", s.Version, tierName)
		}
		actions := make([]auth.Action, 0, len(actionNames))
		for _, name := range actionNames {
			a := auth.Action(name)
			if err := auth.ValidateAction(a); err != nil {
				return nil, fmt.Errorf("policy file %q, tier %s: %w", s.Version, tier, err)
			}
			actions = append(actions, a)
		}
		grants[tier] = actions
	}
	return auth.NewPolicyTable(s.Version, grants), nil
}

// LoadPolicyTable reads a tier policy file and builds an immutable table from
// it. An empty path returns the built-in table.
func LoadPolicyTable(path string) (*auth.PolicyTable, error) {
	if path == "" {
		return auth.DefaultPolicyTable(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading policy file: %w", err)
	}

	var spec policyFileSpec
	if err := v.Unmarshal(&spec); err != nil {
		return nil, fmt.Errorf("error unmarshaling policy file: %w", err)
	}
	return spec.toTable()
}

// WatchPolicyTable loads the policy file and re-reads it whenever it changes,
// calling onReload with each successfully built table. A file change that fails
// validation is logged and skipped; the previously loaded table stays in
// effect, so a bad edit can never lock everyone out. The returned table is the
// initial load.
//
// Viper's watcher (fsnotify underneath) handles the rename-and-replace write
// pattern used by editors and configmap updates, which a naive stat poll would
// miss.
func WatchPolicyTable(path string, log *slog.Logger, onReload func(*auth.PolicyTable)) (*auth.PolicyTable, error) {
	if path == "" {
		return auth.DefaultPolicyTable(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading policy file: %w", err)
	}

	var spec policyFileSpec
	if err := v.Unmarshal(&spec); err != nil {
		return nil, fmt.Errorf("error unmarshaling policy file: %w", err)
	}
	initial, err := spec.toTable()
	if err != nil {
		return nil, err
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		var changed policyFileSpec
		if err := v.Unmarshal(&changed); err != nil {
			log.Error("policy file changed but could not be parsed, keeping previous table",
				"path", path, "error", err)
			return
		}
		table, err := changed.toTable()
		if err != nil {
			log.Error("policy file changed but is invalid, keeping previous table",
				"path", path, "error", err)
			return
		}
		log.Info("policy table reloaded", "path", path, "version", table.Version)
		onReload(table)
	})
	v.WatchConfig()

	return initial, nil
}
