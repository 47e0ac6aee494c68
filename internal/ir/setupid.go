package ir

// PreparationType tags the phase a prepared setup belongs to. It is part of
// the prepared setup id so that an install preparation can never be applied
// as an update or uninstallation.
type PreparationType uint8

const (
	PreparationNone PreparationType = iota
	PreparationInstallation
	PreparationUpdate
	PreparationUninstallation
)

// String returns the phase name.
func (p PreparationType) String() string {
	switch p {
	case PreparationInstallation:
		return "Installation"
	case PreparationUpdate:
		return "Update"
	case PreparationUninstallation:
		return "Uninstallation"
	default:
		return "None"
	}
}

// HashHelpers returns the content hash of an ordered helper list.
// Reordering the helpers changes the hash.
func HashHelpers(helpers []Address) Hash {
	var w Words
	w.Uint(uint64(len(helpers)))
	for _, h := range helpers {
		w.Address(h)
	}
	return w.Sum()
}

// HashPermissions returns the content hash of an ordered permission list.
// Reordering the items changes the hash.
func HashPermissions(perms []MultiTargetPermission) Hash {
	var w Words
	w.Uint(uint64(len(perms)))
	for _, p := range perms {
		w.Uint(uint64(p.Operation)).
			Address(p.Where).
			Address(p.Who).
			Address(p.Condition).
			Hash(Hash(p.PermissionID))
	}
	return w.Sum()
}

// HashData returns the content hash of an opaque setup payload.
func HashData(data []byte) Hash {
	return Keccak256(data)
}

// PluginInstallationID identifies the (dao, plugin) pair.
func PluginInstallationID(dao, plugin Address) Hash {
	var w Words
	return w.Address(dao).Address(plugin).Sum()
}

// PreparedSetupID identifies one prepared installation, update or
// uninstallation. It is a pure function of its arguments.
func PreparedSetupID(tag VersionTag, repo Address, permissionsHash, helpersHash, dataHash Hash, phase PreparationType) Hash {
	var w Words
	return w.Uint(uint64(tag.Release)).
		Uint(uint64(tag.Build)).
		Address(repo).
		Hash(permissionsHash).
		Hash(helpersHash).
		Hash(dataHash).
		Uint(uint64(phase)).
		Sum()
}

// AppliedSetupID identifies the configuration currently installed for a
// plugin: the version it came from and the helpers it owns.
func AppliedSetupID(tag VersionTag, repo Address, helpersHash Hash) Hash {
	var w Words
	return w.Uint(uint64(tag.Release)).
		Uint(uint64(tag.Build)).
		Address(repo).
		Hash(helpersHash).
		Sum()
}

// TagHash is the repository key of a version tag.
func TagHash(tag VersionTag) Hash {
	var w Words
	return w.Uint(uint64(tag.Release)).Uint(uint64(tag.Build)).Sum()
}
