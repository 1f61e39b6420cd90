package domain

// Capability names a platform permission consulted before privileged transitions.
type Capability string

const (
	CapabilityAdministrator   Capability = "ADMINISTRATOR"
	CapabilityManageMessages  Capability = "MANAGE_MESSAGES"
	CapabilityManageRoles     Capability = "MANAGE_ROLES"
	CapabilityModerateMembers Capability = "MODERATE_MEMBERS"
)
