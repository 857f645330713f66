package entity

import (
	"strings"
	"time"
)

// Platform identifies a chat platform a channel delivers to.
type Platform string

const (
	PlatformSlack   Platform = "slack"
	PlatformDiscord Platform = "discord"
	PlatformEmail   Platform = "email"
)

// DefaultLanguage is used when a channel has no preferred language.
const DefaultLanguage = "en"

// KnownPlatforms lists every platform a channel row may carry.
var KnownPlatforms = []Platform{PlatformSlack, PlatformDiscord, PlatformEmail}

// IsKnown reports whether p is one of KnownPlatforms.
func (p Platform) IsKnown() bool {
	for _, known := range KnownPlatforms {
		if p == known {
			return true
		}
	}
	return false
}

// RequiresWorkspaceConnection reports whether delivery needs an OAuth workspace connection.
func (p Platform) RequiresWorkspaceConnection() bool {
	return p == PlatformSlack
}

// NotificationChannel is an organization's configured delivery target on one platform.
type NotificationChannel struct {
	ID                    string
	OrganizationID        string
	Platform              Platform
	Name                  string
	ChannelIdentifier     string // recipient: Slack channel id, Discord channel id, address
	WorkspaceConnectionID *string
	NotificationLanguage  string
	IsActive              bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Language returns the channel's preferred language, falling back to DefaultLanguage.
func (c *NotificationChannel) Language() string {
	lang := strings.TrimSpace(c.NotificationLanguage)
	if lang == "" {
		return DefaultLanguage
	}
	return lang
}

// ConnectionID returns the workspace connection id or "" when none is set.
func (c *NotificationChannel) ConnectionID() string {
	if c.WorkspaceConnectionID == nil {
		return ""
	}
	return *c.WorkspaceConnectionID
}

// Validate checks the fields delivery depends on.
func (c *NotificationChannel) Validate() error {
	if c.ID == "" {
		return &ValidationError{Field: "id", Message: "channel id is required"}
	}
	if c.OrganizationID == "" {
		return &ValidationError{Field: "organization_id", Message: "organization id is required"}
	}
	if !c.Platform.IsKnown() {
		return &ValidationError{Field: "platform", Message: "unknown platform " + string(c.Platform)}
	}
	if strings.TrimSpace(c.ChannelIdentifier) == "" {
		return &ValidationError{Field: "channel_identifier", Message: "recipient is required"}
	}
	if c.Platform.RequiresWorkspaceConnection() && c.ConnectionID() == "" {
		return &ValidationError{Field: "workspace_connection_id", Message: "workspace connection is required for " + string(c.Platform)}
	}
	return nil
}
