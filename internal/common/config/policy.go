package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
)

type policyFile struct {
	SignatureEnforcement string   `yaml:"signature_enforcement"`
	ReplayWindow         string   `yaml:"replay_window"`
	SystemHandles        []string `yaml:"system_handles"`
	Rotation             struct {
		Limit  *int   `yaml:"limit"`
		Window string `yaml:"window"`
	} `yaml:"rotation"`
	Consent struct {
		GrandfatherPending *bool `yaml:"grandfather_pending"`
	} `yaml:"consent"`
	Limits struct {
		Inbox  *int `yaml:"inbox"`
		Outbox *int `yaml:"outbox"`
		Thread *int `yaml:"thread"`
	} `yaml:"limits"`
}

func applyPolicyFile(path string, p *Policy) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read policy file: %w", err)
	}
	return ApplyPolicyYAML(raw, p)
}

// ApplyPolicyYAML overlays only the keys present in the document.
func ApplyPolicyYAML(raw []byte, p *Policy) error {
	var doc policyFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: policy file: %v", commonerrors.ErrInvalidConfig, err)
	}

	if doc.SignatureEnforcement != "" {
		p.SignatureEnforcement = strings.ToLower(doc.SignatureEnforcement)
	}
	if err := overlayDuration(doc.ReplayWindow, &p.ReplayWindow, "replay_window"); err != nil {
		return err
	}
	if len(doc.SystemHandles) > 0 {
		p.SystemHandles = splitList(strings.Join(doc.SystemHandles, ","))
	}
	if doc.Rotation.Limit != nil {
		p.RotationRateLimit = *doc.Rotation.Limit
	}
	if err := overlayDuration(doc.Rotation.Window, &p.RotationRateWindow, "rotation.window"); err != nil {
		return err
	}
	if doc.Consent.GrandfatherPending != nil {
		p.ConsentGrandfatherPending = *doc.Consent.GrandfatherPending
	}
	if doc.Limits.Inbox != nil {
		p.InboxMaxLen = *doc.Limits.Inbox
	}
	if doc.Limits.Outbox != nil {
		p.OutboxMaxLen = *doc.Limits.Outbox
	}
	if doc.Limits.Thread != nil {
		p.ThreadMaxLen = *doc.Limits.Thread
	}
	return nil
}

func overlayDuration(value string, target *time.Duration, field string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", commonerrors.ErrInvalidConfig, field, err)
	}
	*target = d
	return nil
}
