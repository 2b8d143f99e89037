//go:build !darwin && !linux

package storage

// mountType has no statfs to ask here; callers treat the folder and history
// database as local.
func mountType(string) (string, error) {
	return "", errMountTypeUnknown
}
