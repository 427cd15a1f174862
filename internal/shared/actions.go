package shared

// Resource types protected by the platform.
const (
	ResourceExercise     = "EXERCISE"
	ResourceWorkout      = "WORKOUT"
	ResourceProgram      = "PROGRAM"
	ResourceActivity     = "ACTIVITY"
	ResourceEquipment    = "EQUIPMENT"
	ResourceMedia        = "MEDIA"
	ResourceFavorite     = "FAVORITE"
	ResourceUser         = "USER"
	ResourceOrganization = "ORGANIZATION"
)

// Actions an actor can perform on a resource.
const (
	ActionCreate = "CREATE"
	ActionRead   = "READ"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
	ActionShare  = "SHARE"
)

// ResourceTypes lists every protected resource type.
func ResourceTypes() []string {
	return []string{
		ResourceExercise,
		ResourceWorkout,
		ResourceProgram,
		ResourceActivity,
		ResourceEquipment,
		ResourceMedia,
		ResourceFavorite,
		ResourceUser,
		ResourceOrganization,
	}
}

// Actions lists every supported action.
func Actions() []string {
	return []string{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionShare}
}

// PermissionName renders the canonical "<RESOURCE>.<ACTION>" token.
func PermissionName(resource, action string) string {
	return resource + "." + action
}
